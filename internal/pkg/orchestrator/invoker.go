package orchestrator

import (
	"context"
	"errors"

	"github.com/kart-io/megaservice/pkg/llm/openai"
	"github.com/kart-io/megaservice/pkg/utils/httpclient"
	"github.com/kart-io/megaservice/pkg/utils/json"
)

// Invoker 调用远程节点。
type Invoker interface {
	// Invoke 发送请求并返回节点的原始响应；生成节点的流式请求返回 StreamPayload。
	Invoke(ctx context.Context, node ServiceNode, payload Payload) (Payload, error)
}

// HTTPInvoker 通过 HTTP POST JSON 调用远程节点，不做重试。
type HTTPInvoker struct {
	client *httpclient.Client
}

// NewHTTPInvoker 创建 HTTP 调用器。
func NewHTTPInvoker(client *httpclient.Client) *HTTPInvoker {
	return &HTTPInvoker{client: client}
}

var _ Invoker = (*HTTPInvoker)(nil)

// Invoke 实现 Invoker。
func (i *HTTPInvoker) Invoke(ctx context.Context, node ServiceNode, payload Payload) (Payload, error) {
	var body any = payload
	if w, ok := payload.(wireBodier); ok {
		body = w.WireBody()
	}

	if chat, ok := payload.(ChatPayload); ok && chat.Request.Stream {
		rc, err := i.client.PostStream(ctx, node.URL(), body)
		if err != nil {
			return nil, remoteErr(node, err)
		}
		return StreamPayload{Stream: openai.NewStream(rc)}, nil
	}

	switch node.Kind() {
	case KindEmbedding:
		return postAs[EmbedResponse](ctx, i, node, body)
	case KindRetriever:
		return postAs[RetrieveResponse](ctx, i, node, body)
	case KindRerank:
		return postAs[RerankResponse](ctx, i, node, body)
	case KindGenerator:
		return postAs[ChatResponse](ctx, i, node, body)
	case KindGuardrail:
		return postAs[TextPayload](ctx, i, node, body)
	}

	var out json.RawMessage
	if err := i.post(ctx, node, body, &out); err != nil {
		return nil, err
	}
	return RawPayload{Data: out}, nil
}

func postAs[T Payload](ctx context.Context, i *HTTPInvoker, node ServiceNode, body any) (Payload, error) {
	var out T
	if err := i.post(ctx, node, body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (i *HTTPInvoker) post(ctx context.Context, node ServiceNode, body, out any) error {
	if err := i.client.PostJSON(ctx, node.URL(), body, out); err != nil {
		return remoteErr(node, err)
	}
	return nil
}

func remoteErr(node ServiceNode, err error) error {
	e := &RemoteInvocationError{NodeID: node.ID(), URL: node.URL(), Err: err}
	var se *httpclient.StatusError
	if errors.As(err, &se) {
		e.StatusCode = se.StatusCode
	}
	return e
}
