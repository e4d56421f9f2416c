// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package openai provides the HTTP client for OpenAI-compatible
// chat-completions servers (Ollama's /v1 API, LM Studio, llama.cpp server,
// hosted providers).
//
// The client only opens the stream: OpenStream returns the raw response
// body and leaves decoding to the stream package, so the caller controls
// chunking, timeouts and cancellation.
//
// # Errors
//
// Failures are *ClientError values classified by ErrorType. Use IsStatus,
// IsTimeout, IsConnection and IsCanceled rather than comparing messages.
//
// # Usage
//
//	client := openai.NewClient()
//	body, err := client.OpenStream(ctx, endpoint, []openai.ChatMessage{
//	    {Role: "user", Content: "Hello"},
//	})
//	if err != nil {
//	    return err
//	}
//	defer body.Close()
package openai
