// Package openai implements the ai service interfaces against any
// OpenAI-compatible API: OpenAI itself, or local servers speaking the same
// protocol (Ollama, vLLM, LocalAI). Embeddings go through langchaingo's
// embeddings wrapper; tagging and summarization use chat completions at
// temperature 0, with JSON-mode output and repair retries where a structured
// response is required.
package openai
