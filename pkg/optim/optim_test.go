package optim

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func buildSample(t *testing.T) *glpsolSolver {
	t.Helper()
	s := newGlpsolSolver("sample", Min)

	x := s.AddCol("x", Bin, 2)
	y := s.AddCol("y", Bin, 3)
	z := s.AddCol("z", Cont, 0)

	r1 := s.AddRow("pick", 1, Lo)
	s.AddColToRow(r1, x, 1)
	s.AddColToRow(r1, y, 1)

	r2 := s.AddRow("capz", 4, Up)
	s.AddColToRow(r2, z, 1)

	return s
}

func TestWriteLP(t *testing.T) {
	s := buildSample(t)

	path := filepath.Join(t.TempDir(), "m.lp")
	if err := s.WriteLP(path); err != nil {
		t.Fatalf("WriteLP: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lp := string(data)

	for _, want := range []string{
		"Minimize",
		"obj:",
		"+2 x",
		"+3 y",
		"Subject To",
		"pick:",
		">= 1",
		"capz:",
		"<= 4",
		"Binary",
		"End",
	} {
		if !strings.Contains(lp, want) {
			t.Errorf("LP output missing %q:\n%s", want, lp)
		}
	}
}

func TestAddColToRowAccumulates(t *testing.T) {
	s := newGlpsolSolver("acc", Min)
	x := s.AddCol("x", Cont, 1)
	r := s.AddRow("r", 1, Fix)
	s.AddColToRow(r, x, 1)
	s.AddColToRow(r, x, 2)
	if got := s.rows[r].coefs[x]; got != 3 {
		t.Errorf("coefficient = %v, want 3", got)
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		line string
		want Status
	}{
		{"Status:     OPTIMAL", Optimal},
		{"Status:     INTEGER OPTIMAL", Optimal},
		{"Status:     INTEGER NON-OPTIMAL", NonOptimal},
		{"Status:     INFEASIBLE (FINAL)", Infeasible},
		{"Status:     INTEGER EMPTY", Infeasible},
		{"Status:     UNDEFINED", Infeasible},
	}
	for _, tt := range tests {
		if got := parseStatus(tt.line); got != tt.want {
			t.Errorf("parseStatus(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestParseSolution(t *testing.T) {
	s := buildSample(t)

	sol := `Problem:    sample
Rows:       2
Columns:    3 (2 integer, 2 binary)
Non-zeros:  3
Status:     INTEGER OPTIMAL
Objective:  obj = 2 (MINimum)

   No.   Row name        Activity     Lower bound   Upper bound
------ ------------    ------------- ------------- -------------
     1 pick                        1             1
     2 capz                        0                           4

   No. Column name       Activity     Lower bound   Upper bound
------ ------------    ------------- ------------- -------------
     1 x            *              1             0             1
     2 y            *              0             0             1
     3 z                          0.5

End of output
`
	path := filepath.Join(t.TempDir(), "out.sol")
	if err := os.WriteFile(path, []byte(sol), 0644); err != nil {
		t.Fatal(err)
	}

	status, err := s.parseSolution(path)
	if err != nil {
		t.Fatalf("parseSolution: %v", err)
	}
	if status != Optimal {
		t.Errorf("status = %v, want Optimal", status)
	}
	if s.ObjVal() != 2 {
		t.Errorf("objective = %v, want 2", s.ObjVal())
	}
	if s.VarVal(0) != 1 {
		t.Errorf("x = %v, want 1", s.VarVal(0))
	}
	if s.VarVal(1) != 0 {
		t.Errorf("y = %v, want 0", s.VarVal(1))
	}
	if s.VarVal(2) != 0.5 {
		t.Errorf("z = %v, want 0.5", s.VarVal(2))
	}
}

func TestStatusString(t *testing.T) {
	if Optimal.String() != "OPTIM" || NonOptimal.String() != "NON_OPTIM" || Infeasible.String() != "INF" {
		t.Error("status names changed")
	}
}

func TestNewBackend(t *testing.T) {
	if _, err := New("p", "glpk", Min); err != nil {
		t.Errorf("glpk backend should exist: %v", err)
	}
	if _, err := New("p", "cplex", Min); err == nil {
		t.Error("unknown backend should fail")
	}
}
