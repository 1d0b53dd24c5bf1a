package main

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"upets/platform-service/internal/metrics"
	"upets/platform-service/internal/models"
	"upets/platform-service/internal/store"
	"upets/platform-service/internal/store/memory"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), serviceName+" version "+Version)
}

func TestQRRenderWritesPNG(t *testing.T) {
	code, err := store.NewCode(time.Now())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "tag.png")

	var stderr bytes.Buffer
	cmd := rootCmd()
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"qr", "render", code, "--size", "512", "--origin", "https://upets.example", "-o", path})
	require.NoError(t, cmd.Execute())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 512, img.Bounds().Dx())
	assert.Contains(t, stderr.String(), "wrote")
}

func TestQRRenderRejectsMalformedCode(t *testing.T) {
	cmd := rootCmd()
	cmd.SetArgs([]string{"qr", "render", "nope"})
	assert.Error(t, cmd.Execute())
}

func TestExpireAllDrainsInBatches(t *testing.T) {
	ctx := context.Background()
	st := memory.New(memory.Options{})
	past := time.Now().UTC().Add(-time.Hour)

	result, err := st.GenerateBatch(ctx, store.GenerateInput{Quantity: 5, QRType: models.QRTypeBasic})
	require.NoError(t, err)
	for i, qr := range result.Codes {
		pet, err := st.CreatePet(ctx, models.Pet{OwnerID: "owner-1", Name: "pet", Species: models.SpeciesDog})
		require.NoError(t, err, i)
		_, err = st.Activate(ctx, store.ActivateInput{QRID: qr.ID, PetID: pet.ID, OwnerID: "owner-1", ExpiresAt: &past})
		require.NoError(t, err, i)
	}

	m := metrics.New()
	total, err := expireAll(ctx, st, 2, m)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, 5.0, testutil.ToFloat64(m.ExpiredCodes))

	codes, err := st.ListQRCodes(ctx, store.QRFilter{Status: models.QRStatusExpired})
	require.NoError(t, err)
	assert.Len(t, codes, 5)
}
