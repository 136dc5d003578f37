package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunWithGolden executes a scenario and compares its trace against the
// golden file testdata/{name}.golden.
//
// To regenerate golden files:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, name string, sc *Scenario) {
	t.Helper()

	res, err := Run(sc)
	if err != nil {
		t.Fatalf("scenario %q failed: %v", sc.Name, err)
	}

	g := goldie.New(t)
	g.Assert(t, name, res.Bytes())
}
