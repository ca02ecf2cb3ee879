// Package assistant is the automated responder customers talk to before a
// human rep claims their conversation. It also hosts the language helpers
// exposed on the chat API: detection, dictionary translation, and smart
// reply suggestions.
//
// Two Responder implementations exist. RuleResponder is a small keyword
// knowledge base that needs no network. OpenAIResponder forwards the thread
// to an OpenAI-compatible chat completion endpoint.
package assistant
