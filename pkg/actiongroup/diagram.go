package actiongroup

import (
	"context"
	"encoding/json"

	"github.com/ravi-parthasarathy/agenttrace/pkg/artifact"
	"github.com/ravi-parthasarathy/agenttrace/pkg/diagram"
)

// DiagramGenerator renders a diagram for a natural-language request.
type DiagramGenerator interface {
	Generate(ctx context.Context, query string) (diagram.Diagram, error)
}

// DiagramFunction generates an architecture diagram and uploads it. The
// body is a JSON object holding the image URL.
type DiagramFunction struct {
	gen   DiagramGenerator
	store artifact.Store
}

// NewDiagramFunction creates generate_diagram.
func NewDiagramFunction(gen DiagramGenerator, store artifact.Store) *DiagramFunction {
	return &DiagramFunction{gen: gen, store: store}
}

func (f *DiagramFunction) Name() string { return "generate_diagram" }

func (f *DiagramFunction) Invoke(ctx context.Context, req Request) (string, error) {
	query, ok := req.Param("query")
	if !ok {
		query = req.InputText
	}
	if query == "" {
		return "", &MissingParameterError{Function: f.Name(), Name: "query"}
	}
	d, err := f.gen.Generate(ctx, query)
	if err != nil {
		return "", failf(err, "Error generating diagram")
	}
	url, err := f.store.Save(ctx, d.Name, "image/png", d.Data)
	if err != nil {
		return "", failf(err, "Error uploading to S3")
	}
	body, err := json.Marshal(map[string]string{"image_url": url})
	if err != nil {
		return "", err
	}
	return string(body), nil
}
