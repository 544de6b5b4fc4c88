package enrich

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uzstroy/marketintel/internal/model"
)

func TestClassifyName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want model.Role
	}{
		{"laboratory cyrillic", "СИНОВ ЛАБОРАТОРИЯСИ МЧЖ", model.RoleLaboratory},
		{"laboratory latin", "QURILISH LABORATORIYASI", model.RoleLaboratory},
		{"assessor", "МУЛКНИ БАҲОЛАШ МАРКАЗИ", model.RoleAssessor},
		{"assessor russian", "ЦЕНТР ОЦЕНКИ ИМУЩЕСТВА", model.RoleAssessor},
		{"consultant project institute", "ТОШКЕНТ ЛОЙИҲА ИНСТИТУТИ", model.RoleConsultant},
		{"consultant russian", "ПРОЕКТНЫЙ ИНСТИТУТ УЗГИПРОТЯЖПРОМ", model.RoleConsultant},
		{"engineering firm", "ALFA INJINIRING", model.RoleConsultant},
		{"education is other", "ЎҚУВ МАРКАЗИ", model.RoleOther},
		{"trade is other", "SAVDO UYI", model.RoleOther},
		{"plain builder unmatched", "GAMMA QURILISH", model.RoleUnknown},
		{"empty", "", model.RoleUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyName(tt.in))
		})
	}
}

func TestClassifyName_LaboratoryBeatsConsultant(t *testing.T) {
	// A name matching both rule sets takes the earlier, more specific rule.
	assert.Equal(t, model.RoleLaboratory, ClassifyName("ЛОЙИҲА ЛАБОРАТОРИЯСИ"))
}

func TestRoleRank_SpecificNeverDowngrades(t *testing.T) {
	// The rank ordering is what prevents pass 2 from demoting a laboratory
	// back to contractor.
	assert.Greater(t, roleRank[model.RoleLaboratory], roleRank[model.RoleContractor])
	assert.Greater(t, roleRank[model.RoleAssessor], roleRank[model.RoleOther])
	assert.Greater(t, roleRank[model.RoleContractor], roleRank[model.RoleUnknown])
}

func TestClassifier_Run(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	c := NewClassifier(mock)

	mock.ExpectQuery(`SELECT stir, canonical_name, raw_names, company_type FROM companies`).
		WillReturnRows(pgxmock.NewRows([]string{
			"stir", "canonical_name", "raw_names", "company_type",
		}).
			// unknown builder: no keyword, stays unknown in pass 1
			AddRow("111111111", "GAMMA QURILISH", []byte(`["GAMMA QURILISH MCHJ"]`), model.RoleUnknown).
			// unknown lab: relabeled by pass 1
			AddRow("222222222", "СИНОВ ЛАБОРАТОРИЯСИ", []byte(`["СИНОВ ЛАБОРАТОРИЯСИ МЧЖ"]`), model.RoleUnknown).
			// already a laboratory, keyword would say consultant via raw name:
			// rank equality means no downgrade and no update
			AddRow("333333333", "ЛАБОРАТОРИЯ ЛОЙИҲА", []byte(`["ЛОЙИҲА СЕРВИС"]`), model.RoleLaboratory))

	mock.ExpectExec(`UPDATE companies SET company_type`).
		WithArgs("222222222", model.RoleLaboratory).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	mock.ExpectExec(`UPDATE companies SET company_type = 'contractor'`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 7))

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM companies`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(3)))

	report, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(3), report.Examined)
	assert.Equal(t, int64(1), report.Relabeled)
	assert.Equal(t, int64(7), report.RatedContractors)
	assert.Equal(t, int64(3), report.UnknownWinners)
	assert.NoError(t, mock.ExpectationsWereMet())
}
