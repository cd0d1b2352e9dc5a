package server

import (
	"strconv"

	"github.com/getkin/kin-openapi/openapi3"
)

func (s *Server) buildDoc() *openapi3.T {
	paths := openapi3.Paths{}
	for _, rt := range s.table {
		op := &openapi3.Operation{
			OperationID: rt.name,
			Summary:     rt.summary,
			Responses:   routeResponses(rt),
		}
		paths[rt.path] = &openapi3.PathItem{Get: op}
	}

	return &openapi3.T{
		OpenAPI: "3.0.0",
		Info:    &openapi3.Info{Title: "canary", Version: s.cfg.Version},
		Paths:   paths,
	}
}

func routeResponses(rt route) openapi3.Responses {
	if rt.status == 0 {
		return openapi3.Responses{
			"default": &openapi3.ResponseRef{
				Value: openapi3.NewResponse().WithDescription("never completes; the client is expected to time out"),
			},
		}
	}

	res := openapi3.NewResponse().WithDescription(rt.summary)
	if rt.contentType != "" {
		mt := openapi3.NewMediaType()
		if rt.schema != nil {
			mt.Schema = rt.schema.NewRef()
		}
		res.Content = openapi3.Content{rt.contentType: mt}
	}

	return openapi3.Responses{
		strconv.Itoa(rt.status): &openapi3.ResponseRef{Value: res},
	}
}

func summarySchema() *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("status", openapi3.NewStringSchema()).
		WithProperty("iterations", openapi3.NewIntegerSchema()).
		WithProperty("elapsed_seconds", openapi3.NewFloat64Schema()).
		WithProperty("message", openapi3.NewStringSchema())
}
