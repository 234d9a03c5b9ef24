// Package biz 实现 megaservice 的业务逻辑：ChatQnA 问答、会话管理以及非流式回答缓存。
//
// ChatQnA 将 OpenAI 风格的 messages 展平为提示词，连同检索、重排参数交给编排器执行。
// 会话服务在 ChatQnA 之上按 db_name 选择数据库与聊天模板，并持久化每一轮问答。
package biz
