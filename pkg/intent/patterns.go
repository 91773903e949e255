package intent

import (
	"regexp"

	"github.com/kbase-labs/kbagent/pkg/models"
)

// pattern is one weighted vote for (or against) an intent label.
// Negative matches subtract twice the weight of a positive match.
type pattern struct {
	re       *regexp.Regexp
	weight   float64
	negative bool
}

func pos(expr string, weight float64) pattern {
	return pattern{re: regexp.MustCompile(`(?i)` + expr), weight: weight}
}

func neg(expr string, weight float64) pattern {
	return pattern{re: regexp.MustCompile(`(?i)` + expr), weight: weight, negative: true}
}

// intentPatterns holds the multilingual (en/ko/ja) vote dictionaries.
var intentPatterns = map[models.IntentLabel][]pattern{
	models.IntentSearch: {
		pos(`\b(search|find|look\s+up|where)\b`, 1),
		pos(`(찾아|검색|어디)`, 1),
		pos(`(検索|探し|どこ)`, 1),
		neg(`\b(create|delete|update)\b`, 1),
	},
	models.IntentListAll: {
		pos(`\b(list|show\s+all|all\s+of|enumerate)\b`, 1),
		pos(`(목록|전체|모든|리스트)`, 1),
		pos(`(一覧|すべて|全部)`, 1),
		neg(`\b(detail|specific)\b`, 1),
	},
	models.IntentDetail: {
		pos(`\b(detail|details|describe|explain|what\s+is|tell\s+me\s+about)\b`, 1),
		pos(`(자세히|상세|설명)`, 1),
		pos(`(詳細|詳しく|説明)`, 1),
	},
	models.IntentAnalyze: {
		pos(`\b(analyz|analys|compare|evaluate|why|trend)\b`, 1),
		pos(`(분석|비교|평가|왜)`, 1),
		pos(`(分析|比較|評価|なぜ)`, 1),
	},
	models.IntentCreate: {
		pos(`\b(create|add|new|register|open\s+an?\s+issue)\b`, 1),
		pos(`(생성|추가|등록|만들)`, 1),
		pos(`(作成|追加|登録)`, 1),
		neg(`\b(created\s+by|already)\b`, 1),
	},
	models.IntentUpdate: {
		pos(`\b(update|modify|change|edit|rename)\b`, 1),
		pos(`(수정|변경|업데이트)`, 1),
		pos(`(更新|変更|修正)`, 1),
	},
	models.IntentDelete: {
		pos(`\b(delete|remove|drop|close\s+the\s+issue)\b`, 1),
		pos(`(삭제|제거|지워)`, 1),
		pos(`(削除|消して)`, 1),
	},
}

// issueIDRe extracts a 5-8 digit issue id in an issue-ish context.
var issueIDRe = regexp.MustCompile(`(?i)(?:issue|ticket|bug|#|이슈|티켓|課題|チケット)\s*#?\s*(\d{5,8})`)

// bareIssueIDRe matches a standalone 5-8 digit number as a weaker signal.
var bareIssueIDRe = regexp.MustCompile(`\b(\d{5,8})\b`)

// userFilterRe marks user-scoped queries ("my issues", 내, 自分).
var userFilterRe = regexp.MustCompile(`(?i)\b(my|mine|assigned\s+to\s+me)\b|내\s|나의|자신의|自分|私の`)

// productRe lifts a product/keyword mention.
var productRe = regexp.MustCompile(`(?i)(?:about|for|on|regarding|관련|관한|について|に関する)\s+([\p{L}\p{N}_.-]{2,40})`)
