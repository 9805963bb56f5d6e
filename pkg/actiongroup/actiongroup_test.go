package actiongroup_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ravi-parthasarathy/agenttrace/pkg/actiongroup"
	"github.com/ravi-parthasarathy/agenttrace/pkg/diagram"
	"github.com/ravi-parthasarathy/agenttrace/pkg/llm"
)

// ─── fakes ───────────────────────────────────────────────────────────────────

type stubClient struct {
	reply string
	err   error
	reqs  []llm.GenerateRequest
}

func (c *stubClient) Complete(_ context.Context, req llm.GenerateRequest) (llm.GenerateResponse, error) {
	c.reqs = append(c.reqs, req)
	if c.err != nil {
		return llm.GenerateResponse{}, c.err
	}
	return llm.GenerateResponse{Content: []llm.ContentBlock{{Type: llm.ContentTypeText, Text: c.reply}}}, nil
}

func (c *stubClient) Stream(context.Context, llm.GenerateRequest) (<-chan llm.StreamEvent, error) {
	return nil, errors.New("not implemented")
}

type stubGenerator struct {
	d       diagram.Diagram
	err     error
	queries []string
}

func (g *stubGenerator) Generate(_ context.Context, query string) (diagram.Diagram, error) {
	g.queries = append(g.queries, query)
	return g.d, g.err
}

type memStore struct {
	objects map[string][]byte
	err     error
}

func (s *memStore) Save(_ context.Context, name, _ string, data []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.objects == nil {
		s.objects = map[string][]byte{}
	}
	s.objects[name] = data
	return "https://bucket.s3.amazonaws.com/uploaded_images/" + name, nil
}

func (s *memStore) Load(_ context.Context, name string) ([]byte, error) {
	data, ok := s.objects[name]
	if !ok {
		return nil, errors.New("no such key")
	}
	return data, nil
}

func (s *memStore) Fetch(ctx context.Context, url string) ([]byte, error) {
	return s.Load(ctx, url[strings.LastIndex(url, "/")+1:])
}

func request(function string, params ...actiongroup.Parameter) actiongroup.Request {
	return actiongroup.Request{
		MessageVersion: "1.0",
		ActionGroup:    "tools",
		Function:       function,
		Parameters:     params,
		InputText:      "summarise this page",
		SessionID:      "123456789012345",
	}
}

func param(name, value string) actiongroup.Parameter {
	return actiongroup.Parameter{Name: name, Type: "string", Value: value}
}

// ─── envelope and handler ────────────────────────────────────────────────────

func TestRequest_Param(t *testing.T) {
	req := request("f", param("a", "1"), param("b", "2"))
	if v, ok := req.Param("b"); !ok || v != "2" {
		t.Errorf("Param(b) = %q, %v", v, ok)
	}
	if _, ok := req.Param("c"); ok {
		t.Error("Param(c) found with two parameters")
	}
	single := request("f", param("website", "https://example.com"))
	if v, ok := single.Param("url"); !ok || v != "https://example.com" {
		t.Errorf("single Param(url) = %q, %v", v, ok)
	}
}

func TestHandler_ResponseEnvelope(t *testing.T) {
	gen := &stubGenerator{d: diagram.Diagram{Name: "arch.png", Data: []byte("png")}}
	h := actiongroup.NewHandler(actiongroup.NewRegistry(actiongroup.NewDiagramFunction(gen, &memStore{})))

	event := `{"messageVersion":"1.0","actionGroup":"diagrams","function":"generate_diagram",` +
		`"parameters":[{"name":"query","type":"string","value":"a serverless API"}],"sessionId":"1"}`
	out, err := h.HandleJSON(context.Background(), []byte(event))
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"messageVersion": "1.0",
		"response": map[string]any{
			"actionGroup": "diagrams",
			"function":    "generate_diagram",
			"functionResponse": map[string]any{
				"responseBody": map[string]any{
					"TEXT": map[string]any{
						"body": `{"image_url":"https://bucket.s3.amazonaws.com/uploaded_images/arch.png"}`,
					},
				},
			},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a serverless API"}, gen.queries); diff != "" {
		t.Errorf("queries (-want +got):\n%s", diff)
	}
}

func TestHandler_UnknownFunction(t *testing.T) {
	h := actiongroup.NewHandler(actiongroup.NewRegistry())
	resp := h.Handle(context.Background(), request("nope"))
	if resp.Response.FunctionResponse.ResponseState != actiongroup.StateFailure {
		t.Errorf("state = %q", resp.Response.FunctionResponse.ResponseState)
	}
	if !strings.Contains(resp.Body(), `unknown function "nope"`) {
		t.Errorf("body = %q", resp.Body())
	}
}

func TestHandler_BadJSON(t *testing.T) {
	h := actiongroup.NewHandler(actiongroup.NewRegistry())
	if _, err := h.HandleJSON(context.Background(), []byte("{")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestRegistry(t *testing.T) {
	reg := actiongroup.NewRegistry(
		actiongroup.NewCSVRowsFunction(&memStore{}, "data.csv"),
		actiongroup.NewDiagramFunction(&stubGenerator{}, &memStore{}),
	)
	if diff := cmp.Diff([]string{"count_csv_rows", "generate_diagram"}, reg.Names()); diff != "" {
		t.Errorf("Names (-want +got):\n%s", diff)
	}
	var unknown *actiongroup.UnknownFunctionError
	_, err := reg.Get("x")
	if !errors.As(err, &unknown) {
		t.Fatalf("err = %v", err)
	}
	if want := `unknown function "x" (available: count_csv_rows, generate_diagram)`; err.Error() != want {
		t.Errorf("err = %q, want %q", err, want)
	}
}

// ─── generate_diagram ────────────────────────────────────────────────────────

func TestDiagramFunction_Failures(t *testing.T) {
	tests := []struct {
		name  string
		gen   *stubGenerator
		store *memStore
		req   actiongroup.Request
		want  string
	}{
		{"generation", &stubGenerator{err: errors.New("boom")}, &memStore{},
			request("generate_diagram", param("query", "x")), "Error generating diagram"},
		{"upload", &stubGenerator{d: diagram.Diagram{Name: "a.png"}}, &memStore{err: errors.New("denied")},
			request("generate_diagram", param("query", "x")), "Error uploading to S3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := actiongroup.NewHandler(actiongroup.NewRegistry(actiongroup.NewDiagramFunction(tt.gen, tt.store)))
			resp := h.Handle(context.Background(), tt.req)
			if resp.Body() != tt.want {
				t.Errorf("body = %q, want %q", resp.Body(), tt.want)
			}
			if resp.Response.FunctionResponse.ResponseState != actiongroup.StateFailure {
				t.Errorf("state = %q", resp.Response.FunctionResponse.ResponseState)
			}
		})
	}
}

func TestDiagramFunction_FallsBackToInputText(t *testing.T) {
	gen := &stubGenerator{d: diagram.Diagram{Name: "a.png"}}
	f := actiongroup.NewDiagramFunction(gen, &memStore{})
	req := request("generate_diagram")
	req.InputText = "three tier app"
	if _, err := f.Invoke(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if gen.queries[0] != "three tier app" {
		t.Errorf("query = %q", gen.queries[0])
	}
}

// ─── website_to_text ─────────────────────────────────────────────────────────

func TestWebsiteFunction(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("Page body"))
	}))
	defer srv.Close()

	client := &stubClient{reply: "a summary"}
	f := actiongroup.NewWebsiteFunction(client, "haiku",
		actiongroup.WithHTTPClient(srv.Client()),
		actiongroup.WithReaderURL(srv.URL+"/"),
		actiongroup.WithAPIKey("secret"))

	out, err := f.Invoke(context.Background(), request("website_to_text", param("url", "https://example.com/docs")))
	if err != nil {
		t.Fatal(err)
	}
	if out != "a summary" {
		t.Errorf("out = %q", out)
	}
	if gotPath != "/https://example.com/docs" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("auth = %q", gotAuth)
	}
	want := "summarise this page <website text>Page body</website_text>"
	if got := client.reqs[0].Messages[0].Text(); got != want {
		t.Errorf("prompt = %q, want %q", got, want)
	}
	if client.reqs[0].Model != "haiku" || client.reqs[0].MaxTokens != 4096 {
		t.Errorf("request = %+v", client.reqs[0])
	}
}

func TestWebsiteFunction_ReaderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := &stubClient{}
	f := actiongroup.NewWebsiteFunction(client, "haiku", actiongroup.WithReaderURL(srv.URL+"/"))
	_, err := f.Invoke(context.Background(), request("website_to_text", param("url", "https://example.com")))
	var fe *actiongroup.FunctionError
	if !errors.As(err, &fe) || fe.Message != "Error fetching https://example.com" {
		t.Fatalf("err = %v", err)
	}
	if len(client.reqs) != 0 {
		t.Error("model called after fetch failure")
	}
}

func TestWebsiteFunction_MissingURL(t *testing.T) {
	f := actiongroup.NewWebsiteFunction(&stubClient{}, "haiku")
	_, err := f.Invoke(context.Background(), request("website_to_text"))
	var mp *actiongroup.MissingParameterError
	if !errors.As(err, &mp) || mp.Name != "url" {
		t.Fatalf("err = %v", err)
	}
}

// ─── count_csv_rows ──────────────────────────────────────────────────────────

func TestCountRows(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"header only", "a,b\n", 0},
		{"empty", "", 0},
		{"rows", "a,b\n1,2\n3,4\n", 2},
		{"ragged", "a,b\n1\n3,4,5\n", 2},
		{"quoted newline", "a,b\n\"x\ny\",2\n", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := actiongroup.CountRows(strings.NewReader(tt.in))
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("CountRows = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCSVRowsFunction(t *testing.T) {
	store := &memStore{objects: map[string][]byte{
		"data.csv":  []byte("id\n1\n2\n3\n"),
		"other.csv": []byte("id\n1\n"),
	}}
	f := actiongroup.NewCSVRowsFunction(store, "data.csv")

	out, err := f.Invoke(context.Background(), request("count_csv_rows"))
	if err != nil || out != "3" {
		t.Errorf("default object = %q, %v", out, err)
	}
	out, err = f.Invoke(context.Background(), request("count_csv_rows", param("key", "other.csv")))
	if err != nil || out != "1" {
		t.Errorf("named object = %q, %v", out, err)
	}
	if _, err := f.Invoke(context.Background(), request("count_csv_rows", param("key", "missing.csv"))); err == nil {
		t.Error("expected error for missing object")
	}
}

// ─── describe_image ──────────────────────────────────────────────────────────

func TestDescribeImageFunction(t *testing.T) {
	store := &memStore{objects: map[string][]byte{"arch.jpg": []byte("jpeg")}}
	client := &stubClient{reply: "It is a three tier app."}
	f := actiongroup.NewDescribeImageFunction(store, client, "sonnet")

	out, err := f.Invoke(context.Background(),
		request("describe_image", param("image_url", "https://b.s3.amazonaws.com/uploaded_images/arch.jpg")))
	if err != nil {
		t.Fatal(err)
	}
	if out != "It is a three tier app." {
		t.Errorf("out = %q", out)
	}
	msg := client.reqs[0].Messages[0]
	if len(msg.Content) != 2 || msg.Content[1].Image == nil {
		t.Fatalf("message content = %+v", msg.Content)
	}
	if msg.Content[1].Image.MediaType != "image/jpeg" {
		t.Errorf("media type = %q", msg.Content[1].Image.MediaType)
	}
}
