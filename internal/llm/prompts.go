package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"newsroll/internal/core"
)

const issueSampleSize = 20

type itemInput struct {
	Title       string `json:"title"`
	Snippet     string `json:"snippet"`
	Source      string `json:"source"`
	PublishedAt string `json:"published_at,omitempty"`
}

type sampleInput struct {
	Title           string   `json:"title"`
	Summary         string   `json:"summary"`
	Topics          []string `json:"topics"`
	Status          string   `json:"status,omitempty"`
	ImportanceScore int      `json:"importanceScore,omitempty"`
	Source          string   `json:"source"`
	URL             string   `json:"url"`
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func itemPrompt(item core.RawItem, taxonomy []string) string {
	in := itemInput{
		Title:   core.NormalizeText(item.Title),
		Snippet: core.NormalizeText(item.Snippet),
		Source:  core.NormalizeText(item.Source),
	}
	if !item.PublishedAt.IsZero() {
		in.PublishedAt = item.PublishedAt.Format(time.RFC3339)
	}
	return "업데이트를 요약하는 분석가입니다. " +
		"한국어로만 응답하세요. JSON만 반환하세요. " +
		"키: summary(짧은 문장 3개 배열), why(한 문장), topics(2-5개 태그), " +
		"status(NEW|ONGOING|SHIFTING), importanceScore(1-10 정수). " +
		"topics는 반드시 다음 목록에서만 선택하세요: " +
		strings.Join(taxonomy, ", ") + ". " +
		"importanceScore는 중요도/영향도를 반영하세요. " +
		"Input: " + mustJSON(in)
}

func samples(items []core.EnrichedItem) []sampleInput {
	if len(items) > issueSampleSize {
		items = items[:issueSampleSize]
	}
	out := make([]sampleInput, 0, len(items))
	for _, item := range items {
		summary := item.Summary
		if len(summary) > 2 {
			summary = summary[:2]
		}
		topics := item.Topics
		if topics == nil {
			topics = []string{}
		}
		out = append(out, sampleInput{
			Title:           core.NormalizeText(item.Title),
			Summary:         strings.Join(summary, " "),
			Topics:          topics,
			Status:          string(item.Status),
			ImportanceScore: item.ImportanceScore,
			Source:          item.Source,
			URL:             item.URL,
		})
	}
	return out
}

func issuesPrompt(items []core.EnrichedItem, tab string) string {
	return "주간/월간 업데이트를 주요 이슈로 재요약하세요. " +
		"한국어로만 응답하고 JSON 배열만 반환하세요. " +
		"각 항목은 id, status(NEW|ONGOING|SHIFTING), title, summary, articleCount, " +
		"relatedArticles(최대 3개, source/title/url 포함) 키를 포함해야 합니다. " +
		"주제 다양성을 확보하고 같은 주제 반복을 피하세요. " +
		fmt.Sprintf("대상 탭: %s. ", tab) +
		"Input: " + mustJSON(samples(items))
}

func highlightsPrompt(items []core.EnrichedItem, tab string, lines int) string {
	return "오늘의 업데이트를 핵심 요약 문장으로 정리하세요. " +
		"한국어로만 응답하고 JSON 객체만 반환하세요. " +
		fmt.Sprintf("키: bullets(정확히 %d개의 짧은 문장 배열). ", lines) +
		"각 문장은 서로 다른 업데이트를 다루고 과장 없이 사실만 전달하세요. " +
		fmt.Sprintf("대상 탭: %s. ", tab) +
		"Input: " + mustJSON(samples(items))
}
