package judge

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// testCaseInfo is the bundle manifest the worker reads from the shared
// volume.
type testCaseInfo struct {
	SPJ       bool                      `json:"spj"`
	TestCases map[string]singleTestCase `json:"test_cases"`
}

type singleTestCase struct {
	InputName         string `json:"input_name"`
	OutputName        string `json:"output_name"`
	OutputMD5         string `json:"output_md5"`
	StrippedOutputMD5 string `json:"stripped_output_md5"`
}

// writeTestCaseBundle materializes a one-case bundle under a fresh
// directory on the shared volume: 1.in holds stdin, 1.out is empty, and
// the info manifest carries the md5 fields the worker validates against.
// Returns the case ID (the directory name).
func writeTestCaseBundle(baseDir, stdin string) (string, error) {
	caseID := strings.ReplaceAll(uuid.New().String(), "-", "")
	caseDir := filepath.Join(baseDir, caseID)
	if err := os.MkdirAll(caseDir, 0o755); err != nil {
		return "", fmt.Errorf("create test case dir: %w", err)
	}

	if err := os.WriteFile(filepath.Join(caseDir, "1.in"), []byte(stdin), 0o644); err != nil {
		return "", fmt.Errorf("write test case input: %w", err)
	}

	// Expected output is empty; the worker returns stdout because the run
	// requests output=true, so the md5 comparison result is ignored.
	var outBytes []byte
	if err := os.WriteFile(filepath.Join(caseDir, "1.out"), outBytes, 0o644); err != nil {
		return "", fmt.Errorf("write test case output: %w", err)
	}

	info := testCaseInfo{
		SPJ: false,
		TestCases: map[string]singleTestCase{
			"1": {
				InputName:         "1.in",
				OutputName:        "1.out",
				OutputMD5:         md5Hex(outBytes),
				StrippedOutputMD5: md5Hex(rstripLines(outBytes)),
			},
		},
	}
	data, err := json.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("marshal test case info: %w", err)
	}
	if err := os.WriteFile(filepath.Join(caseDir, "info"), data, 0o644); err != nil {
		return "", fmt.Errorf("write test case info: %w", err)
	}

	return caseID, nil
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// rstripLines strips trailing whitespace per line, joining with newlines —
// the worker's "stripped output" convention.
func rstripLines(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	lines := bytes.Split(data, []byte("\n"))
	stripped := make([][]byte, len(lines))
	for i, line := range lines {
		stripped[i] = bytes.TrimRight(line, " \t\r\n")
	}
	return bytes.Join(stripped, []byte("\n"))
}
