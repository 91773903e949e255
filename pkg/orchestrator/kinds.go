package orchestrator

import (
	"sort"
	"strings"
	"unicode"

	"github.com/kbase-labs/kbagent/pkg/models"
)

// kindKeywords vote for an agent kind during routing. RAG wins ties and
// is the default when nothing matches.
var kindKeywords = map[models.AgentKind][]string{
	models.AgentKindIMS: {
		"issue", "ticket", "bug", "incident", "jira", "assignee", "backlog",
		"이슈", "티켓", "버그", "장애", "담당자",
		"課題", "チケット", "バグ", "障害", "担当者",
	},
	models.AgentKindVision: {
		"image", "figure", "diagram", "chart", "table", "scanned", "screenshot", "pdf",
		"이미지", "그림", "도표", "차트", "스캔",
		"画像", "図", "グラフ", "表", "スキャン",
	},
	models.AgentKindCode: {
		"code", "function", "bugfix", "stack trace", "compile", "script", "command", "implementation",
		"코드", "함수", "스크립트", "명령어", "구현",
		"コード", "関数", "スクリプト", "コマンド", "実装",
	},
	models.AgentKindPlanner: {
		"plan", "roadmap", "strategy", "step by step", "breakdown", "milestones",
		"계획", "로드맵", "전략", "단계별",
		"計画", "ロードマップ", "戦略", "段階",
	},
	models.AgentKindRAG: {
		"what", "how", "explain", "documentation", "guide", "policy", "knowledge",
		"무엇", "어떻게", "설명", "문서", "가이드", "정책",
		"何", "どう", "説明", "ドキュメント", "ガイド", "ポリシー",
	},
}

// ClassifyKind scores the task against the per-kind keyword lists.
// Ties break toward RAG; no match defaults to RAG.
func ClassifyKind(task string) models.AgentKind {
	lower := strings.ToLower(task)
	scores := make(map[models.AgentKind]int)
	for kind, keywords := range kindKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				scores[kind]++
			}
		}
	}
	if len(scores) == 0 {
		return models.AgentKindRAG
	}

	kinds := make([]models.AgentKind, 0, len(scores))
	for kind := range scores {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool {
		if scores[kinds[i]] != scores[kinds[j]] {
			return scores[kinds[i]] > scores[kinds[j]]
		}
		// RAG first on equal score, then stable by name.
		if kinds[i] == models.AgentKindRAG || kinds[j] == models.AgentKindRAG {
			return kinds[i] == models.AgentKindRAG
		}
		return kinds[i] < kinds[j]
	})
	return kinds[0]
}

// detectLanguage resolves "auto" by script: Hangul means Korean, kana
// means Japanese, otherwise English. Han alone is ambiguous and falls
// through to Japanese only when kana is present.
func detectLanguage(requested models.Language, task string) models.Language {
	if requested != "" && requested != models.LanguageAuto {
		return requested
	}
	for _, r := range task {
		if unicode.Is(unicode.Hangul, r) {
			return models.LanguageKorean
		}
		if unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) {
			return models.LanguageJapanese
		}
	}
	return models.LanguageEnglish
}

// Localized fixed responses.
func rephraseMessage(lang models.Language) string {
	switch lang {
	case models.LanguageKorean:
		return "질문을 이해하지 못했습니다. 다시 표현해 주시겠어요?"
	case models.LanguageJapanese:
		return "ご質問を理解できませんでした。言い換えていただけますか。"
	default:
		return "I could not understand the question. Could you rephrase it?"
	}
}

func allFailedMessage(lang models.Language) string {
	switch lang {
	case models.LanguageKorean:
		return "요청을 처리하는 중 모든 작업이 실패했습니다. 잠시 후 다시 시도해 주세요."
	case models.LanguageJapanese:
		return "すべてのタスクの処理に失敗しました。しばらくしてからもう一度お試しください。"
	default:
		return "All tasks failed while processing the request. Please try again later."
	}
}
