package grading

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/SAP-F-2025/quiz-attempt-service/internal/judge"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/models"
)

// CodingRunner executes a CODING answer against every test case of its question.
type CodingRunner struct {
	executor    judge.Executor
	concurrency int
	logger      *slog.Logger
}

func NewCodingRunner(executor judge.Executor, concurrency int, logger *slog.Logger) *CodingRunner {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CodingRunner{executor: executor, concurrency: concurrency, logger: logger}
}

// Run returns one result per test case, in test case order. It never fails: cases the
// judge cannot evaluate are recorded INDETERMINATE.
func (r *CodingRunner) Run(ctx context.Context, q *models.Question, a *models.Answer) []models.JudgeCaseResult {
	results := make([]models.JudgeCaseResult, len(q.TestCases))
	for i, tc := range q.TestCases {
		results[i] = models.JudgeCaseResult{
			TestCaseID: tc.ID,
			Hidden:     tc.IsHidden,
			Points:     tc.Points,
			Verdict:    string(judge.VerdictIndeterminate),
		}
	}

	language := ""
	if a.CodeLanguage != nil {
		language = *a.CodeLanguage
	}
	languageID, err := r.executor.LanguageID(language)
	if err != nil {
		r.logger.Warn("Cannot resolve judge language",
			"answer_id", a.ID,
			"language", language,
			"error", err)
		for i := range results {
			results[i].Message = err.Error()
		}
		return results
	}

	source := ""
	if a.SubmittedCode != nil {
		source = *a.SubmittedCode
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i := range q.TestCases {
		tc := q.TestCases[i]
		g.Go(func() error {
			expected := tc.ExpectedOutput
			res := r.executor.Execute(gctx, judge.Submission{
				SourceCode:     source,
				LanguageID:     languageID,
				Stdin:          tc.Input,
				ExpectedOutput: &expected,
			})
			fill(&results[i], res)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func fill(dst *models.JudgeCaseResult, res *judge.Result) {
	dst.Verdict = string(res.Verdict)
	dst.StatusID = res.StatusID
	dst.Description = res.Description
	dst.Stdout = res.Stdout
	dst.Stderr = res.Stderr
	dst.CompileOutput = res.CompileOutput
	dst.Message = res.Message
	dst.Time = res.Time
	dst.Memory = res.Memory
	dst.Token = res.Token
}
