package restgateway

import (
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRegister_RejectsDuplicateVerbAndPath(t *testing.T) {
	path := "/test-register-dup"
	if err := Register(RestMethod{Verb: GET, Path: path, Handler: func(c *gin.Context) {}}); err != nil {
		t.Fatalf("first registration should succeed, got %v", err)
	}
	if err := Register(RestMethod{Verb: GET, Path: path, Handler: func(c *gin.Context) {}}); err == nil {
		t.Fatal("expected duplicate verb+path registration to fail")
	}
}

func TestRegisterMethod_AddsRoute(t *testing.T) {
	path := "/test-register-add"
	if err := RegisterMethod(POST, path, func(c *gin.Context) {}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var found *RestMethod
	for _, rm := range RestMethods() {
		rm := rm
		if rm.Verb == POST && rm.Path == path {
			found = &rm
			break
		}
	}
	if found == nil {
		t.Fatal("expected registered method to be present in RestMethods()")
	}
}
