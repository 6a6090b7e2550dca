package llm

import (
	"context"
	"fmt"
)

type fakeClient struct{}

func (f *fakeClient) Chat(ctx context.Context, req *ChatRequest) (*Response, error) {
	return &Response{Content: "ok", Model: "test", Provider: ProviderBedrock, Usage: &Usage{TotalTokens: 3}}, nil
}
func (f *fakeClient) Completion(ctx context.Context, prompt string) (*Response, error) {
	return &Response{Content: "ok", Model: "test", Provider: ProviderBedrock}, nil
}
func (f *fakeClient) Stream(ctx context.Context, req *ChatRequest, output chan<- *Response) error {
	defer close(output)
	output <- &Response{Content: "ok", Model: "test", Provider: ProviderBedrock}
	return nil
}
func (f *fakeClient) Model() string      { return "test" }
func (f *fakeClient) Provider() Provider { return ProviderBedrock }
func (f *fakeClient) Validate() error    { return nil }

func ExampleInstrumentedClient() {
	c := NewInstrumentedClient(&fakeClient{})
	r, _ := c.Chat(context.Background(), &ChatRequest{Messages: []Message{UserMessage("hi")}})
	fmt.Println(r.Content)
	// Output:
	// ok
}

func ExampleFixedRetryConfig() {
	cfg := FixedRetryConfig(3, 60_000_000_000)
	fmt.Println(cfg.MaxRetries, cfg.InitialDelay, cfg.MaxDelay)
	// Output:
	// 3 1m0s 1m0s
}
