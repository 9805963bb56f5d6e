package actiongroup

import (
	"context"

	"github.com/ravi-parthasarathy/agenttrace/pkg/artifact"
	"github.com/ravi-parthasarathy/agenttrace/pkg/llm"
)

const (
	describeSystem = "You are an experienced AWS Solutions Architect with deep knowledge of AWS services " +
		"and best practices for designing and implementing cloud architectures. Maintain a professional " +
		"and consultative tone, providing clear and detailed explanations tailored for technical audiences. " +
		"Your task is to describe and explain AWS architecture diagrams presented by users. Your descriptions " +
		"should cover the purpose and functionality of the included AWS services, their interactions, data " +
		"flows, and any relevant design patterns or best practices."
	describePrompt = "Please describe the following AWS architecture diagram, explaining the purpose " +
		"of each service, their interactions, and any relevant design considerations or best practices."
)

// Fetcher downloads an object by URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// DescribeImageFunction explains an uploaded architecture diagram.
type DescribeImageFunction struct {
	fetcher Fetcher
	client  llm.Client
	model   string
}

// NewDescribeImageFunction creates describe_image.
func NewDescribeImageFunction(fetcher Fetcher, client llm.Client, model string) *DescribeImageFunction {
	return &DescribeImageFunction{fetcher: fetcher, client: client, model: model}
}

func (f *DescribeImageFunction) Name() string { return "describe_image" }

func (f *DescribeImageFunction) Invoke(ctx context.Context, req Request) (string, error) {
	url, ok := req.Param("image_url")
	if !ok || url == "" {
		return "", &MissingParameterError{Function: f.Name(), Name: "image_url"}
	}
	data, err := f.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", failf(err, "Error downloading image")
	}
	resp, err := f.client.Complete(ctx, llm.GenerateRequest{
		Model:     f.model,
		System:    describeSystem,
		Messages:  []llm.Message{llm.ImageMessage(describePrompt, artifact.ContentType(url, ""), data)},
		MaxTokens: summaryMaxTokens,
	})
	if err != nil {
		return "", failf(err, "Error describing image")
	}
	return resp.Text(), nil
}
