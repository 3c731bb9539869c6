package integrity

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/jobwatch/internal/model"
)

func intPtr(v int) *int { return &v }

func TestSettingsHash_Deterministic(t *testing.T) {
	s := model.Settings{
		RoleKeywords:    []string{"frontend", "react"},
		ExcludeKeywords: []string{"staff"},
	}
	h1, err := SettingsHash(s)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := SettingsHash(s)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatalf("hash not deterministic: %q != %q", h1, h2)
	}
	if len(h1) != 64 {
		t.Fatalf("expected 64-char hex SHA-256, got %d chars", len(h1))
	}
}

func TestSettingsHash_DefaultsEquivalentToExplicit(t *testing.T) {
	yes := true
	implicit := model.Settings{RoleKeywords: []string{"frontend"}}
	explicit := model.Settings{
		RoleKeywords:      []string{"  Frontend "},
		FilterMode:        model.FilterModeSmart,
		MinScoreToInclude: intPtr(3),
		USOnly:            &yes,
		AllowRemoteUS:     &yes,
		WorkMode:          "any",
		MLMode:            model.MLModeRankOnly,
	}
	h1, _ := SettingsHash(implicit)
	h2, _ := SettingsHash(explicit)
	if h1 != h2 {
		t.Fatal("absent fields and their explicit defaults should hash the same")
	}
}

func TestSettingsHash_KeywordChangeChangesHash(t *testing.T) {
	base := model.Settings{
		RoleKeywords:    []string{"frontend"},
		IncludeKeywords: []string{"react"},
		ExcludeKeywords: []string{"staff"},
	}
	h0, _ := SettingsHash(base)

	changes := map[string]model.Settings{
		"role":      {RoleKeywords: []string{"backend"}, IncludeKeywords: []string{"react"}, ExcludeKeywords: []string{"staff"}},
		"include":   {RoleKeywords: []string{"frontend"}, IncludeKeywords: []string{"vue"}, ExcludeKeywords: []string{"staff"}},
		"exclude":   {RoleKeywords: []string{"frontend"}, IncludeKeywords: []string{"react"}, ExcludeKeywords: []string{"principal"}},
		"exception": {RoleKeywords: []string{"frontend"}, IncludeKeywords: []string{"react"}, ExcludeKeywords: []string{"staff"}, ExcludeExceptions: []string{"staff frontend"}},
		"threshold": {RoleKeywords: []string{"frontend"}, IncludeKeywords: []string{"react"}, ExcludeKeywords: []string{"staff"}, MinScoreToInclude: intPtr(4)},
	}
	for name, s := range changes {
		h, err := SettingsHash(s)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if h == h0 {
			t.Errorf("%s: changing one list should change the hash", name)
		}
	}
}

func TestFieldDigest_NoDelimiterCollision(t *testing.T) {
	if FieldDigest("a|b", "c") == FieldDigest("a", "b|c") {
		t.Fatal("length-prefixed fields must not collide on embedded delimiters")
	}
	if FieldDigest("ab", "") == FieldDigest("a", "b") {
		t.Fatal("field boundaries must be part of the digest")
	}
}

func TestAuditLeafHash_ReflectsVerdict(t *testing.T) {
	e := model.AuditEntry{
		RunID:     uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		DedupeKey: "v1:abc",
		Included:  false,
		Reasons:   []model.ReasonToken{model.HardConstraintReason(model.ConstraintLocation, false, "not_us")},
	}
	h1 := AuditLeafHash(e)
	e.Included = true
	e.OverrideAction = model.OverrideInclude
	e.Reasons = append(e.Reasons, model.OverrideReason(model.OverrideInclude))
	if h1 == AuditLeafHash(e) {
		t.Fatal("override must change the leaf hash")
	}
}

func TestTrainingSetID(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := []model.Feedback{
		{DedupeKey: "k1", Label: model.LabelInclude, CreatedAt: ts},
		{DedupeKey: "k2", Label: model.LabelExclude, CreatedAt: ts.Add(time.Minute)},
	}
	id1 := TrainingSetID(rows)
	if id1 != TrainingSetID(rows) {
		t.Fatal("training set id not deterministic")
	}
	rows[1].Label = model.LabelIgnore
	if id1 == TrainingSetID(rows) {
		t.Fatal("relabelling must change the training set id")
	}
}

func TestBuildMerkleRoot(t *testing.T) {
	if got := BuildMerkleRoot(nil); got != "" {
		t.Fatalf("empty leaves should yield empty root, got %q", got)
	}
	if got := BuildMerkleRoot([]string{"aa"}); got != "aa" {
		t.Fatalf("single leaf should be the root, got %q", got)
	}

	leaves := []string{
		FieldDigest("one"),
		FieldDigest("two"),
		FieldDigest("three"),
	}
	r1 := BuildMerkleRoot(leaves)
	r2 := BuildMerkleRoot([]string{leaves[2], leaves[0], leaves[1]})
	if r1 != r2 {
		t.Fatal("root must not depend on leaf order")
	}
	if r1 == BuildMerkleRoot(leaves[:2]) {
		t.Fatal("dropping a leaf must change the root")
	}
}
