package indicators

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeResource(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeResource(t, dir, "indicateur_calis_apg43_5.csv",
		"ID_indicateur,indicateur,type\n"+
			"1,VoiproITRALAC.nw-01,counter\n"+
			"2,VoiproNCALLSI.mt-02,counter\n")

	l := &Loader{Logger: zap.NewNop(), Dir: dir}
	m, err := l.Load("CALIS_APG43_5_S10_A2024")
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{
		1: "VoiproITRALAC.nw-01",
		2: "VoiproNCALLSI.mt-02",
	}, m)
}

func TestLoadMissingResource(t *testing.T) {
	l := &Loader{Logger: zap.NewNop(), Dir: t.TempDir()}
	m, err := l.Load("CALIS_APG43_5_S10_A2024")
	require.NoError(t, err)
	assert.Empty(t, m, "missing resource must yield an empty map, not an error")
}

func TestLoadSkipsBadIDs(t *testing.T) {
	dir := t.TempDir()
	writeResource(t, dir, "indicateur_casamgw.csv",
		"ID_indicateur,indicateur,type\n"+
			"x,broken.nw,counter\n"+
			"7,pmRtpLostPkts.ne-3,counter\n")

	l := &Loader{Logger: zap.NewNop(), Dir: dir}
	m, err := l.Load("CASAMGW_S2_A2025")
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{7: "pmRtpLostPkts.ne-3"}, m)
}

func TestLoadMissingColumns(t *testing.T) {
	dir := t.TempDir()
	writeResource(t, dir, "indicateur_casamgw.csv", "id,name\n1,foo\n")

	l := &Loader{Logger: zap.NewNop(), Dir: dir}
	_, err := l.Load("CASAMGW_S2_A2025")
	assert.Error(t, err)
}
