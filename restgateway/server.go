package restgateway

import (
	"fmt"

	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/sharedcode/tiercache"
	"github.com/sharedcode/tiercache/restgateway/docs"
)

// Server wires a gin router in front of a CacheEngine, following the
// teacher's route-registry + bearer-token-guard + swagger wiring.
type Server struct {
	router *gin.Engine
	gw     *gateway
}

// New builds a Server surfacing engine over HTTP.
func New(engine *tiercache.CacheEngine[string, string]) *Server {
	s := &Server{
		router: gin.Default(),
		gw:     &gateway{engine: engine},
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	RegisterMethod(GET, "/cache", s.gw.GetAllValues)
	RegisterMethod(PUT, "/cache", s.gw.PutAllValues)
	RegisterMethod(DELETE, "/cache", s.gw.RemoveAllValues)
	RegisterMethod(POST, "/cache/clear", s.gw.ClearCache)
	RegisterMethod(GET, "/cache/:key", s.gw.GetValue)
	RegisterMethod(GET, "/cache/:key/contains", s.gw.ContainsKey)
	RegisterMethod(PUT, "/cache/:key", s.gw.PutValue)
	RegisterMethod(POST, "/cache/:key/if-absent", s.gw.PutIfAbsentValue)
	RegisterMethod(DELETE, "/cache/:key", s.gw.RemoveValue)
	RegisterMethod(POST, "/cache/:key/remove-if-match", s.gw.RemoveIfMatchValue)
	RegisterMethod(PUT, "/cache/:key/replace", s.gw.ReplaceValue)
	RegisterMethod(PUT, "/cache/:key/replace-if-match", s.gw.ReplaceIfMatchValue)

	docs.SwaggerInfo.BasePath = "/api/v1"
	v1 := s.router.Group("/api/v1")
	{
		for _, rm := range RestMethods() {
			switch rm.Verb {
			case GET:
				v1.GET(rm.Path, verifyHeaderToken(rm.Handler))
			case DELETE:
				v1.DELETE(rm.Path, verifyHeaderToken(rm.Handler))
			case POST:
				v1.POST(rm.Path, verifyHeaderToken(rm.Handler))
			case PUT:
				v1.PUT(rm.Path, verifyHeaderToken(rm.Handler))
			default:
				panic(fmt.Sprintf("HTTP verb %d not supported", rm.Verb))
			}
		}
	}

	s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))
}

// Run blocks serving HTTP on addr (e.g. "localhost:8080").
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}
