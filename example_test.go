package chatbridge_test

import (
	"fmt"

	"github.com/skosovsky/chatbridge"
)

func ExampleResolveConfig() {
	req, err := chatbridge.DecodeRequest([]byte(`{"model":"deep_seek_think_search","stream":true,"messages":[{"role":"user","content":"hi"}]}`))
	if err != nil {
		panic(err)
	}
	cfg := chatbridge.ResolveConfig(req)
	fmt.Println(cfg.ModelName, cfg.Features.Thinking, cfg.Features.Searching, cfg.ChatType, cfg.Stream)
	// Output: deep_seek true true search true
}

func ExampleApproxCounter() {
	c := &chatbridge.ApproxCounter{}
	n, _ := c.Count("Hello 世界")
	fmt.Println(n)
	// Output: 4
}
