package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driving"
	"github.com/Pg1910/clinical-rag/internal/logger"
)

// Ensure SOAPService implements the interface.
var _ driving.SOAPService = (*SOAPService)(nil)

// Global context retrieval parameters.
const (
	globalContextQuery = "patient summary diagnosis treatment history"
	globalContextPool  = 50

	// Conversation turns and notes considered when building context from a row.
	rowContextTurns = 3
	rowContextNotes = 2

	turnValueChars = 200
	noteValueChars = 300

	// Summary-derived queries keep this many terms per section.
	queryTerms     = 5
	queryTermChars = 100
	queryItemChars = 50
	queryListItems = 3
)

var numericToken = regexp.MustCompile(`\d+\.?\d*`)

// SOAPService wraps hybrid retrieval with section-aware expansion,
// filtering and rerank.
type SOAPService struct {
	retrieval  driving.RetrievalService
	rules      domain.RuleSet
	poolFactor int
}

// NewSOAPService creates a new SOAP service.
func NewSOAPService(retrieval driving.RetrievalService, rules domain.RuleSet, settings domain.RetrievalSettings) *SOAPService {
	poolFactor := settings.SectionPoolFactor
	if poolFactor <= 0 {
		poolFactor = domain.DefaultAppSettings().Retrieval.SectionPoolFactor
	}
	return &SOAPService{
		retrieval:  retrieval,
		rules:      rules,
		poolFactor: poolFactor,
	}
}

// SectionSearch expands the query with the section's leading boost terms,
// retrieves a wider pool, drops other rows and, for S and O, background
// evidence, then reranks. A non-positive topK uses the section pack size.
func (s *SOAPService) SectionSearch(
	ctx context.Context, corpus *driven.Corpus, section domain.Section, query string, rowID *int, topK int,
) (domain.EvidencePack, error) {
	if !section.IsValid() {
		return domain.EvidencePack{}, fmt.Errorf("%w: section %q", domain.ErrInvalidInput, section)
	}
	rule := s.rules.Section(section)
	if topK <= 0 {
		topK = rule.PackSize
	}
	if strings.TrimSpace(query) == "" {
		query = rule.DefaultQuery
	}

	expanded := s.expandQuery(query, rule)
	results, err := s.retrieval.Search(ctx, corpus, expanded, topK*s.poolFactor)
	if err != nil {
		return domain.EvidencePack{}, err
	}

	kept := results[:0:0]
	for _, r := range results {
		if rowID != nil && !domain.MatchesRow(r.EvidenceID, *rowID) {
			continue
		}
		if section.IsPatientFacing() && domain.IsBackgroundID(r.EvidenceID) {
			continue
		}
		kept = append(kept, r)
	}

	return domain.EvidencePack{
		Section: section,
		Query:   expanded,
		Results: s.rerank(kept, section, topK),
	}, nil
}

func (s *SOAPService) expandQuery(query string, rule domain.SectionRule) string {
	n := min(s.rules.Rerank.ExpansionTerms, len(rule.BoostTerms))
	if n <= 0 {
		return query
	}
	return strings.TrimSpace(query + " " + strings.Join(rule.BoostTerms[:n], " "))
}

// rerank rescores results for a section and keeps the best topK.
// Equal scores keep retrieval order.
func (s *SOAPService) rerank(results []domain.RetrievalResult, section domain.Section, topK int) []domain.RetrievalResult {
	out := make([]domain.RetrievalResult, len(results))
	for i, r := range results {
		r.Score = s.SectionScore(r, section)
		out[i] = r
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Score > out[b].Score
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

// SectionScore multiplies the fused score by the prefix boost, the capped
// keyword-density boost, the Objective numeric boost and the background
// penalty, as applicable.
func (s *SOAPService) SectionScore(r domain.RetrievalResult, section domain.Section) float64 {
	rule := s.rules.Section(section)
	rr := s.rules.Rerank
	score := r.Score

	if domain.HasPrefix(r.EvidenceID, rule.PreferredPrefixes) {
		score *= rr.PrefixBoost
	}
	if hits := domain.CountTerms(r.Text, rule.BoostTerms); hits > 0 {
		score *= 1 + rr.KeywordStep*float64(min(hits, rr.KeywordCap))
	}
	if section == domain.SectionObjective && len(numericToken.FindAllString(r.Text, -1)) >= rr.NumericMin {
		score *= rr.NumericBoost
	}
	if section.IsPatientFacing() && domain.IsBackgroundID(r.EvidenceID) {
		score *= rr.BackgroundPenalty
	}
	return score
}

// BuildPacks builds the four section packs. S and O are narrowed to their
// pack prefixes unless that would leave them empty. Plan uses an
// information-needed template when missing items are given.
func (s *SOAPService) BuildPacks(
	ctx context.Context, corpus *driven.Corpus, req driving.PackRequest,
) (map[domain.Section]domain.EvidencePack, error) {
	packs := make(map[domain.Section]domain.EvidencePack, 4)

	for _, section := range domain.AllSections() {
		if section == domain.SectionPlan && len(req.PlanMissing) > 0 {
			packs[section] = domain.EvidencePack{
				Section:  section,
				Template: "Information needed: " + strings.Join(req.PlanMissing, ", "),
			}
			continue
		}

		rule := s.rules.Section(section)
		pack, err := s.SectionSearch(ctx, corpus, section, req.Queries[section], req.RowID, rule.PackSize)
		if err != nil {
			return nil, fmt.Errorf("build %s pack: %w", section, err)
		}
		if len(rule.PackPrefixes) > 0 {
			var narrowed []domain.RetrievalResult
			for _, r := range pack.Results {
				if domain.HasPrefix(r.EvidenceID, rule.PackPrefixes) {
					narrowed = append(narrowed, r)
				}
			}
			if len(narrowed) > 0 {
				pack.Results = narrowed
			}
		}
		packs[section] = pack
	}

	logger.Debug("packs: S=%d O=%d A=%d P=%d",
		len(packs[domain.SectionSubjective].Results), len(packs[domain.SectionObjective].Results),
		len(packs[domain.SectionAssessment].Results), len(packs[domain.SectionPlan].Results))
	return packs, nil
}

// BuildGlobalContext retrieves summary facts and classifies them into sections.
func (s *SOAPService) BuildGlobalContext(
	ctx context.Context, corpus *driven.Corpus, rowID *int,
) (domain.SOAPContext, error) {
	soap := domain.SOAPContext{RowID: rowID}

	results, err := s.retrieval.Search(ctx, corpus, globalContextQuery, globalContextPool)
	if err != nil {
		return soap, err
	}

	summaryPrefix := []string{domain.EvidenceCSVSummary.Prefix()}
	for _, r := range results {
		if !domain.HasPrefix(r.EvidenceID, summaryPrefix) {
			continue
		}
		if rowID != nil && !domain.MatchesRow(r.EvidenceID, *rowID) {
			continue
		}
		label, value := splitFact(r.Text)
		s.appendCapped(&soap, s.rules.ClassifySection(r.Text), domain.Fact{
			Label:       label,
			Value:       value,
			EvidenceIDs: []string{r.EvidenceID},
		})
	}
	return soap, nil
}

// BuildGlobalContextFromRow classifies one row's records without searching.
// Complaint-bearing conversation turns seed Subjective; note chunks stand
// in when no turn qualifies.
func (s *SOAPService) BuildGlobalContextFromRow(records []domain.EvidenceRecord, rowID int) domain.SOAPContext {
	id := rowID
	soap := domain.SOAPContext{RowID: &id}

	var turns, summary, notes []domain.EvidenceRecord
	for _, rec := range records {
		if rec.Locator.RowID == nil || *rec.Locator.RowID != rowID {
			continue
		}
		switch rec.Type {
		case domain.EvidenceCSVConversation:
			turns = append(turns, rec)
		case domain.EvidenceCSVSummary:
			summary = append(summary, rec)
		case domain.EvidenceCSVNote:
			notes = append(notes, rec)
		}
	}

	for _, rec := range turns[:min(rowContextTurns, len(turns))] {
		if domain.ContainsAnyTerm(rec.RawText, s.rules.SubjectiveTurnTerms) {
			s.appendCapped(&soap, domain.SectionSubjective, domain.Fact{
				Label:       "chief_complaint",
				Value:       truncateRunes(rec.RawText, turnValueChars),
				EvidenceIDs: []string{rec.ID},
			})
		}
	}

	for _, rec := range summary {
		label := rec.Metadata["key"]
		if label == "" {
			label = "fact"
		}
		value, ok := rec.Metadata["value"]
		if !ok {
			value = rec.RawText
		}
		s.appendCapped(&soap, s.rules.ClassifySection(rec.RawText), domain.Fact{
			Label:       label,
			Value:       value,
			EvidenceIDs: []string{rec.ID},
		})
	}

	if len(soap.S) == 0 {
		for _, rec := range notes[:min(rowContextNotes, len(notes))] {
			s.appendCapped(&soap, domain.SectionSubjective, domain.Fact{
				Label:       "note",
				Value:       truncateRunes(rec.RawText, noteValueChars),
				EvidenceIDs: []string{rec.ID},
			})
		}
	}
	return soap
}

// appendCapped adds a fact unless the section is at its context cap.
func (s *SOAPService) appendCapped(soap *domain.SOAPContext, section domain.Section, f domain.Fact) {
	limit := s.rules.Section(section).ContextCap
	if limit > 0 && len(soap.Facts(section)) >= limit {
		return
	}
	soap.Append(section, f)
}

// MissingSlots lists, per section, the template slots with no fact of the
// same label. Sections with every slot filled are omitted.
func (s *SOAPService) MissingSlots(soap domain.SOAPContext) map[domain.Section][]string {
	missing := make(map[domain.Section][]string)
	for _, section := range domain.AllSections() {
		filled := make(map[string]bool)
		for _, f := range soap.Facts(section) {
			filled[strings.ToLower(f.Label)] = true
		}
		for _, slot := range s.rules.Section(section).Slots {
			if !filled[strings.ToLower(slot)] {
				missing[section] = append(missing[section], slot)
			}
		}
	}
	return missing
}

// GenerateQueries derives one query per section from a summary JSON
// document: values of fields whose name contains a section query key.
// Sections without matches, or an unparseable document, use the defaults.
func (s *SOAPService) GenerateQueries(summaryJSON string) map[domain.Section]string {
	var doc any
	if err := json.Unmarshal([]byte(summaryJSON), &doc); err != nil {
		logger.Debug("summary is not JSON, using default section queries: %v", err)
		doc = nil
	}

	queries := make(map[domain.Section]string, 4)
	for _, section := range domain.AllSections() {
		rule := s.rules.Section(section)
		terms := extractQueryTerms(doc, rule.QueryKeys)
		queries[section] = s.joinTerms(terms, rule)
	}
	return queries
}

// QueriesFromFacts derives section queries from flattened summary records
// of one row, matching each fact's key path against the section query keys.
func (s *SOAPService) QueriesFromFacts(records []domain.EvidenceRecord, rowID *int) map[domain.Section]string {
	queries := make(map[domain.Section]string, 4)
	for _, section := range domain.AllSections() {
		rule := s.rules.Section(section)
		var terms []string
		for _, rec := range records {
			if rec.Type != domain.EvidenceCSVSummary {
				continue
			}
			if rowID != nil && (rec.Locator.RowID == nil || *rec.Locator.RowID != *rowID) {
				continue
			}
			if keyMatches(rec.Metadata["key"], rule.QueryKeys) {
				terms = append(terms, truncateRunes(rec.Metadata["value"], queryTermChars))
			}
		}
		queries[section] = s.joinTerms(terms, rule)
	}
	return queries
}

func (s *SOAPService) joinTerms(terms []string, rule domain.SectionRule) string {
	var kept []string
	for _, t := range terms {
		if strings.TrimSpace(t) != "" {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		return rule.DefaultQuery
	}
	return strings.Join(kept[:min(queryTerms, len(kept))], " ")
}

// extractQueryTerms walks a decoded JSON value in key order.
func extractQueryTerms(node any, keys []string) []string {
	var terms []string
	switch v := node.(type) {
	case map[string]any:
		names := make([]string, 0, len(v))
		for name := range v {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			child := v[name]
			if keyMatches(name, keys) {
				switch c := child.(type) {
				case string:
					terms = append(terms, truncateRunes(c, queryTermChars))
					continue
				case []any:
					for _, item := range c[:min(queryListItems, len(c))] {
						terms = append(terms, truncateRunes(fmt.Sprint(item), queryItemChars))
					}
					continue
				}
			}
			terms = append(terms, extractQueryTerms(child, keys)...)
		}
	case []any:
		for _, item := range v {
			terms = append(terms, extractQueryTerms(item, keys)...)
		}
	}
	return terms
}

func keyMatches(name string, keys []string) bool {
	lower := strings.ToLower(name)
	for _, k := range keys {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// splitFact splits "label: value" on the first colon.
func splitFact(text string) (string, string) {
	label, value, ok := strings.Cut(text, ":")
	if !ok {
		return "fact", strings.TrimSpace(text)
	}
	return strings.TrimSpace(label), strings.TrimSpace(value)
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
