package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alligator-inc/alligator-engine/pkg/models"
)

func typedCand(id, name string, rho float64, typeIDs ...string) *models.Candidate {
	c := &models.Candidate{ID: id, Name: name, Rho: rho}
	for _, t := range typeIDs {
		c.Types = append(c.Types, models.CandidateType{ID: t, Name: t})
	}
	return c
}

func byRho(c *models.Candidate) float64 { return c.Rho }

func TestBuildProfiles_CTAElection(t *testing.T) {
	// Top-1 types [human, human, human] weighted by rho [0.9, 0.8, 0.7].
	rows := []*models.Row{
		buildRow(1, neCell("Zooey Deschanel", 0, true, typedCand("Q100", "Zooey Deschanel", 0.9, "Q5"))),
		buildRow(2, neCell("Tom Hanks", 0, true, typedCand("Q101", "Tom Hanks", 0.8, "Q5"))),
		buildRow(3, neCell("Natalie Portman", 0, true, typedCand("Q102", "Natalie Portman", 0.7, "Q5", "Q33999"))),
	}

	profiles := NewRevision().BuildProfiles(rows, byRho)

	require.NotEmpty(t, profiles.Types[0])
	assert.Equal(t, "Q5", profiles.Types[0][0].ID)
	// Q5 carries weight 2.4, the actor type only 0.7.
	assert.InDelta(t, 2.4/3.1, profiles.Types[0][0].Frequency, 1e-9)
	assert.Equal(t, "Q33999", profiles.Types[0][1].ID)
}

func TestBuildProfiles_CTATieBreaksByAscendingTypeID(t *testing.T) {
	rows := []*models.Row{
		buildRow(1, neCell("a", 0, true, typedCand("Q1", "a", 0.5, "Q20", "Q10"))),
	}

	profiles := NewRevision().BuildProfiles(rows, byRho)
	require.Len(t, profiles.Types[0], 2)
	assert.Equal(t, "Q10", profiles.Types[0][0].ID)
	assert.Equal(t, "Q20", profiles.Types[0][1].ID)
}

func TestBuildProfiles_CPAElection(t *testing.T) {
	// Subject candidates connect to the DOB literal via P569 twice (weights
	// 0.9, 0.8) and P570 once (0.7): CPA(0,3) must elect P569.
	mkRow := func(idRow int, rho float64, pred string) *models.Row {
		subject := typedCand("Q10"+string(rune('0'+idRow)), "actor", rho, "Q5")
		subject.MatchedLitPreds = map[int][]string{3: {pred}}
		return buildRow(idRow,
			neCell("actor", 0, true, subject),
			litCell("dob", 3, models.DatatypeDatetime),
		)
	}
	rows := []*models.Row{
		mkRow(1, 0.9, "P569"),
		mkRow(2, 0.8, "P569"),
		mkRow(3, 0.7, "P570"),
	}

	profiles := NewRevision().BuildProfiles(rows, byRho)

	require.NotEmpty(t, profiles.PredicatePairs[3])
	assert.Equal(t, "P569", profiles.PredicatePairs[3][0].ID)
	assert.Equal(t, "P569", WinningPredicates(profiles)["0"]["3"])
}

func TestBuildProfiles_CPAFromNEPairs(t *testing.T) {
	subject := typedCand("Q100", "actor", 0.9, "Q5")
	city := typedCand("Q65", "city", 0.8, "Q515")
	subject.RelatedPreds = map[string][]string{"Q65": {"P19"}}

	rows := []*models.Row{
		buildRow(1,
			neCell("actor", 0, true, subject),
			neCell("city", 1, false, city),
		),
	}

	profiles := NewRevision().BuildProfiles(rows, byRho)

	require.NotEmpty(t, profiles.PredicatePairs[1])
	assert.Equal(t, "P19", profiles.PredicatePairs[1][0].ID)
	require.NotEmpty(t, profiles.Predicates)
	assert.Equal(t, "P19", profiles.Predicates[0].ID)
	assert.Equal(t, 0, profiles.SubjectColumn)
}

func TestBuildProfiles_KeepsTopFive(t *testing.T) {
	c := typedCand("Q1", "a", 1.0, "T1", "T2", "T3", "T4", "T5", "T6", "T7")
	rows := []*models.Row{buildRow(1, neCell("a", 0, true, c))}

	profiles := NewRevision().BuildProfiles(rows, byRho)
	assert.Len(t, profiles.Types[0], 5)

	total := 0.0
	for _, e := range profiles.Types[0] {
		total += e.Frequency
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestComputeFeatures_AssignsCTAFeatures(t *testing.T) {
	human := typedCand("Q100", "Tom Hanks", 0.9, "Q5")
	city := typedCand("Q65", "Tom Hanks", 0.4, "Q515")
	cell := neCell("Tom Hanks", 0, true, human, city)
	rows := []*models.Row{buildRow(1, cell)}

	rev := NewRevision()
	profiles := rev.BuildProfiles(rows, byRho)
	rev.ComputeFeatures(rows, profiles)

	// The column profile is dominated by the top-1's types.
	assert.Equal(t, 1.0, human.Feature(models.FeatCTA1))
	assert.Equal(t, 0.0, city.Feature(models.FeatCTA1))
	assert.Equal(t, 0.0, human.Feature(models.FeatCTA2))
}

func TestComputeFeatures_AssignsCPAFeaturesToSubjectCandidates(t *testing.T) {
	subject := typedCand("Q100", "actor", 0.9, "Q5")
	subject.MatchedLitPreds = map[int][]string{1: {"P569"}}
	rival := typedCand("Q200", "actor", 0.5, "Q5")

	rows := []*models.Row{buildRow(1,
		neCell("actor", 0, true, subject, rival),
		litCell("January 17, 1980", 1, models.DatatypeDatetime),
	)}

	rev := NewRevision()
	profiles := rev.BuildProfiles(rows, byRho)
	rev.ComputeFeatures(rows, profiles)

	assert.Equal(t, 1.0, subject.Feature(models.FeatCPA1))
	assert.Equal(t, 0.0, rival.Feature(models.FeatCPA1), "no connection, no feature")
}

func TestComputeFeatures_EmptyProfilesLeaveZeros(t *testing.T) {
	c := cand("Q1", "x")
	rows := []*models.Row{buildRow(1, neCell("x", 0, true, c))}

	rev := NewRevision()
	profiles := rev.BuildProfiles(rows, byRho)
	rev.ComputeFeatures(rows, profiles)

	assert.Equal(t, 0.0, c.Feature(models.FeatCTA1))
	assert.Equal(t, 0.0, c.Feature(models.FeatCPA1))
}

func TestWinningTypes(t *testing.T) {
	rows := []*models.Row{
		buildRow(1, neCell("a", 0, true, typedCand("Q1", "a", 0.9, "Q5"))),
	}
	profiles := NewRevision().BuildProfiles(rows, byRho)
	assert.Equal(t, map[string]string{"0": "Q5"}, WinningTypes(profiles))
}
