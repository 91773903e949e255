// Package models holds the shared domain types: agent kinds, messages,
// tasks and DAGs, results, requests, and stream chunks.
package models

import "strings"

// AgentKind identifies a specialized agent.
type AgentKind string

const (
	// AgentKindRAG answers knowledge-base questions via retrieval.
	AgentKindRAG AgentKind = "rag"
	// AgentKindIMS searches the issue management system.
	AgentKindIMS AgentKind = "ims"
	// AgentKindVision analyzes documents with figures and tables.
	AgentKindVision AgentKind = "vision"
	// AgentKindCode answers code questions, with limited shell access.
	AgentKindCode AgentKind = "code"
	// AgentKindPlanner decomposes complex tasks.
	AgentKindPlanner AgentKind = "planner"
)

// AllAgentKinds lists every kind in canonical order.
var AllAgentKinds = []AgentKind{
	AgentKindRAG,
	AgentKindIMS,
	AgentKindVision,
	AgentKindCode,
	AgentKindPlanner,
}

// IsValid reports whether k is a known agent kind.
func (k AgentKind) IsValid() bool {
	switch k {
	case AgentKindRAG, AgentKindIMS, AgentKindVision, AgentKindCode, AgentKindPlanner:
		return true
	}
	return false
}

// ParseAgentKind normalizes a string to an agent kind. Unknown values
// fall back to the RAG agent, the safe generalist.
func ParseAgentKind(s string) AgentKind {
	k := AgentKind(strings.ToLower(strings.TrimSpace(s)))
	if k.IsValid() {
		return k
	}
	return AgentKindRAG
}

// Language is the requested answer language.
type Language string

const (
	LanguageAuto     Language = "auto"
	LanguageEnglish  Language = "en"
	LanguageKorean   Language = "ko"
	LanguageJapanese Language = "ja"
)

// IsValid reports whether l is a supported language tag.
func (l Language) IsValid() bool {
	switch l {
	case LanguageAuto, LanguageEnglish, LanguageKorean, LanguageJapanese:
		return true
	}
	return false
}
