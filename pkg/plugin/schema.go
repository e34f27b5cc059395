package plugin

import (
	"context"
	"fmt"
	"strings"

	"github.com/bufbuild/protocompile"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// schema is a plugin's protocol, compiled from its .proto at runtime.
type schema struct {
	methods map[string]protoreflect.MethodDescriptor
}

// compileSchema compiles a .proto file and indexes every unary method by
// its invocation path ("/package.Service/Method").
func compileSchema(ctx context.Context, protoPath string) (*schema, error) {
	compiler := protocompile.Compiler{
		Resolver: protocompile.WithStandardImports(&protocompile.SourceResolver{}),
	}
	compiled, err := compiler.Compile(ctx, protoPath)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", protoPath, err)
	}

	s := &schema{methods: make(map[string]protoreflect.MethodDescriptor)}
	for _, file := range compiled {
		services := file.Services()
		for i := 0; i < services.Len(); i++ {
			svc := services.Get(i)
			methods := svc.Methods()
			for j := 0; j < methods.Len(); j++ {
				method := methods.Get(j)
				path := fmt.Sprintf("/%s/%s", svc.FullName(), method.Name())
				s.methods[path] = method
			}
		}
	}
	return s, nil
}

// lookup finds a method by invocation path, tolerating a missing leading
// slash.
func (s *schema) lookup(path string) (protoreflect.MethodDescriptor, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	method, ok := s.methods[path]
	if !ok {
		return nil, fmt.Errorf("schema has no method %s", path)
	}
	if method.IsStreamingClient() || method.IsStreamingServer() {
		return nil, fmt.Errorf("method %s streams; only unary methods can be verified", path)
	}
	return method, nil
}
