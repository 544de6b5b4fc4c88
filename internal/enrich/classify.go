// Package enrich derives company facts the upstream sources never state
// directly: market role, geographic attribution, and per-company tender
// aggregates.
package enrich

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/uzstroy/marketintel/internal/db"
	"github.com/uzstroy/marketintel/internal/model"
)

// nameRule maps name keywords to a role. Rules are evaluated in order and the
// first match wins, so narrower roles must precede broader ones.
type nameRule struct {
	role     model.Role
	keywords []string
}

var nameRules = []nameRule{
	{model.RoleLaboratory, []string{
		"лаборатор", "laborator", "синов марказ", "sinov markaz", "испытательн",
	}},
	{model.RoleAssessor, []string{
		"баҳолаш", "bahola", "оценк", "оценочн", "ekspertiza", "экспертиз",
	}},
	{model.RoleConsultant, []string{
		"лойиҳа", "loyiha", "проект", "konsalt", "консалт",
		"injiniring", "инжиниринг", "тадқиқот", "tadqiqot",
	}},
	{model.RoleOther, []string{
		"таълим", "o'quv", "ўқув", "учебн", "savdo", "савдо", "торгов",
	}},
}

// roleRank orders roles by specificity. Classification only ever moves a
// company up the ranking, so a laboratory can never be demoted back to a
// plain contractor by a later, weaker signal.
var roleRank = map[model.Role]int{
	model.RoleUnknown:    0,
	model.RoleContractor: 1,
	model.RoleOther:      2,
	model.RoleConsultant: 3,
	model.RoleAssessor:   3,
	model.RoleLaboratory: 3,
}

var classifyCaser = cases.Lower(language.Und)

// ClassifyName returns the role implied by a company name, or RoleUnknown
// when no rule matches.
func ClassifyName(name string) model.Role {
	lower := classifyCaser.String(name)
	for _, r := range nameRules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.role
			}
		}
	}
	return model.RoleUnknown
}

// ClassifyReport summarizes one classification pass.
type ClassifyReport struct {
	Examined         int64
	Relabeled        int64
	RatedContractors int64
	UnknownWinners   int64
}

// Classifier assigns market roles to companies.
type Classifier struct {
	pool db.Pool
}

// NewClassifier creates a Classifier backed by the given pool.
func NewClassifier(pool db.Pool) *Classifier {
	return &Classifier{pool: pool}
}

// Run executes the three classification passes:
//
//  1. name keywords over the canonical name and every raw variant, applied
//     only when the new role outranks the current one;
//  2. still-unknown companies that carry a rating score become contractors
//     (only rated builders appear in the rating system);
//  3. unknown companies with tender wins are counted and reported, never
//     guessed at.
func (c *Classifier) Run(ctx context.Context) (ClassifyReport, error) {
	var report ClassifyReport

	rows, err := c.pool.Query(ctx,
		`SELECT stir, canonical_name, raw_names, company_type FROM companies`)
	if err != nil {
		return report, eris.Wrap(err, "classify: select companies")
	}

	type update struct {
		stir string
		role model.Role
	}
	var updates []update
	for rows.Next() {
		var (
			stir, canonical string
			rawNamesJSON    []byte
			current         model.Role
		)
		if err := rows.Scan(&stir, &canonical, &rawNamesJSON, &current); err != nil {
			rows.Close()
			return report, eris.Wrap(err, "classify: scan company")
		}
		report.Examined++

		var rawNames []string
		if err := json.Unmarshal(rawNamesJSON, &rawNames); err != nil {
			rows.Close()
			return report, eris.Wrapf(err, "classify: decode raw_names for %s", stir)
		}

		role := ClassifyName(canonical)
		for _, raw := range rawNames {
			if r := ClassifyName(raw); roleRank[r] > roleRank[role] {
				role = r
			}
		}
		if roleRank[role] > roleRank[current] {
			updates = append(updates, update{stir: stir, role: role})
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return report, eris.Wrap(err, "classify: iterate companies")
	}
	rows.Close()

	for _, u := range updates {
		if _, err := c.pool.Exec(ctx,
			`UPDATE companies SET company_type = $2, updated_at = now() WHERE stir = $1`,
			u.stir, u.role,
		); err != nil {
			return report, eris.Wrapf(err, "classify: relabel %s", u.stir)
		}
		report.Relabeled++
	}

	tag, err := c.pool.Exec(ctx,
		`UPDATE companies SET company_type = 'contractor', updated_at = now()
		 WHERE company_type = 'unknown' AND rating_score IS NOT NULL`)
	if err != nil {
		return report, eris.Wrap(err, "classify: promote rated companies")
	}
	report.RatedContractors = tag.RowsAffected()

	err = c.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM companies
		 WHERE company_type = 'unknown' AND total_wins > 0`,
	).Scan(&report.UnknownWinners)
	if err != nil {
		return report, eris.Wrap(err, "classify: count unknown winners")
	}

	zap.L().Info("classification complete",
		zap.Int64("examined", report.Examined),
		zap.Int64("relabeled", report.Relabeled),
		zap.Int64("rated_contractors", report.RatedContractors),
		zap.Int64("unknown_winners", report.UnknownWinners),
	)
	return report, nil
}
