package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// 服务图编排相关错误码 (Service: 21)
var (
	// ErrDuplicateNode 节点 ID 重复
	ErrDuplicateNode = Register(New(MakeCode(ServiceMegaservice, CategoryConfig, 1),
		http.StatusInternalServerError, codes.FailedPrecondition,
		"Duplicate service node", "服务节点重复"))

	// ErrUnknownNode 节点不存在
	ErrUnknownNode = Register(New(MakeCode(ServiceMegaservice, CategoryConfig, 2),
		http.StatusInternalServerError, codes.FailedPrecondition,
		"Unknown service node", "服务节点不存在"))

	// ErrGraphCycle 服务图存在环
	ErrGraphCycle = Register(New(MakeCode(ServiceMegaservice, CategoryConfig, 3),
		http.StatusInternalServerError, codes.FailedPrecondition,
		"Service graph contains a cycle", "服务图存在环"))

	// ErrRemoteInvocation 远程节点调用失败
	ErrRemoteInvocation = Register(New(MakeCode(ServiceMegaservice, CategoryNetwork, 1),
		http.StatusBadGateway, codes.Unavailable,
		"Remote service invocation failed", "远程服务调用失败"))

	// ErrAdapter 载荷适配失败
	ErrAdapter = Register(New(MakeCode(ServiceMegaservice, CategoryInternal, 1),
		http.StatusInternalServerError, codes.Internal,
		"Payload adaptation failed", "载荷适配失败"))

	// ErrUnsupportedTemplate 提示模板变量不受支持（仅记录日志）
	ErrUnsupportedTemplate = Register(New(MakeCode(ServiceMegaservice, CategoryRequest, 1),
		http.StatusBadRequest, codes.InvalidArgument,
		"Unsupported chat template", "不支持的提示模板"))

	// ErrInvalidMessages 聊天消息格式无效
	ErrInvalidMessages = Register(New(MakeCode(ServiceMegaservice, CategoryRequest, 2),
		http.StatusBadRequest, codes.InvalidArgument,
		"Invalid chat messages", "聊天消息无效"))

	// ErrMissingDBName 缺少 db_name 参数
	ErrMissingDBName = Register(New(MakeCode(ServiceMegaservice, CategoryRequest, 3),
		http.StatusBadRequest, codes.InvalidArgument,
		"db_name parameter is required", "缺少 db_name 参数"))

	// ErrConversationNotFound 会话不存在
	ErrConversationNotFound = Register(New(MakeCode(ServiceMegaservice, CategoryResource, 1),
		http.StatusNotFound, codes.NotFound,
		"Conversation not found", "会话不存在"))

	// ErrCircularNotFound 通函不存在
	ErrCircularNotFound = Register(New(MakeCode(ServiceMegaservice, CategoryResource, 2),
		http.StatusNotFound, codes.NotFound,
		"Circular not found", "通函不存在"))

	// ErrEmptyCircularUpdate 通函更新请求没有可更新的字段
	ErrEmptyCircularUpdate = Register(New(MakeCode(ServiceMegaservice, CategoryRequest, 4),
		http.StatusBadRequest, codes.InvalidArgument,
		"Nothing to update, provide bookmark or conversation_id", "没有可更新的字段，需提供 bookmark 或 conversation_id"))

	// ErrStreamInterrupted 流式输出中断
	ErrStreamInterrupted = Register(New(MakeCode(ServiceMegaservice, CategoryNetwork, 2),
		http.StatusBadGateway, codes.Aborted,
		"Generator stream interrupted", "生成流中断"))
)
