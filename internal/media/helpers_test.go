package media

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"testing"
	"time"

	"github.com/sergioamr/img-api/db"
	"github.com/sergioamr/img-api/internal/model"
	"github.com/sergioamr/img-api/internal/storage"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testEnv struct {
	store *Store
	db    *gorm.DB
	fs    afero.Fs
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	fs := afero.NewMemMapFs()

	tick := time.Unix(1_700_000_000, 0)
	clock := func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	return &testEnv{
		store: NewStore(gdb, storage.NewLocal(fs), WithClock(clock)),
		db:    gdb,
		fs:    fs,
	}
}

func (e *testEnv) stats(t *testing.T, userID string) model.Stats {
	t.Helper()

	var st model.Stats
	require.NoError(t, e.db.Where("user_id = ?", userID).First(&st).Error)
	return st
}

func testImage(c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func pngBytes(t *testing.T, c color.Color) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage(c)))
	return buf.Bytes()
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(color.White), nil))
	return buf.Bytes()
}

func gifBytes(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, testImage(color.Black), nil))
	return buf.Bytes()
}

func bmpBytes(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, testImage(color.Gray{Y: 0x80})))
	return buf.Bytes()
}

// tgaBytes builds an uncompressed 2x2 24-bit TGA, bottom-left origin.
func tgaBytes() []byte {
	h := make([]byte, 18)
	h[2] = 2
	h[12], h[14] = 2, 2
	h[16] = 24

	// rows bottom to top, pixels BGR
	pix := []byte{
		0, 0, 255, 0, 255, 0, // bottom: red, green
		255, 0, 0, 255, 255, 255, // top: blue, white
	}
	return append(h, pix...)
}

var (
	alice = &Owner{ID: "u-alice", Username: "alice"}
	bob   = &Owner{ID: "u-bob", Username: "bob"}
	anon  = &Owner{ID: "u-anon", Username: "anon_x1", IsAnon: true}
)
