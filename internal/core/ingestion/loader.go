package ingestion

import (
	"errors"
	"log/slog"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var errInvalidUTF8 = errors.New("invalid utf-8")

type textDecoder struct {
	name   string
	decode func([]byte) (string, error)
}

// decoders は試行順に並んだデコーダ（UTF-8 → Latin-1 → CP1252）
var decoders = []textDecoder{
	{name: "utf-8", decode: decodeUTF8},
	{name: "latin-1", decode: charmapDecoder(charmap.ISO8859_1)},
	{name: "cp1252", decode: charmapDecoder(charmap.Windows1252)},
}

// Loader はファイルをテキストとして読み込む
type Loader struct {
	logger *slog.Logger
}

// LoaderOption は Loader のオプション
type LoaderOption func(*Loader)

// WithLoaderLogger はロガーを設定する
func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// NewLoader は新しい Loader を作成する
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// Load はファイルを読み込み、デコードできたテキストを返す。
// 読み込みやデコードに失敗した場合は空文字を返す。
func (l *Loader) Load(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		l.logger.Debug("ファイルの読み込みに失敗したためスキップします", "path", path, "error", err)
		return ""
	}

	text, ok := Decode(data)
	if !ok {
		l.logger.Debug("ファイルをデコードできないためスキップします", "path", path)
		return ""
	}
	return text
}

// Decode はバイト列をデコーダ順に試してテキストへ変換する
func Decode(data []byte) (string, bool) {
	for _, d := range decoders {
		text, err := d.decode(data)
		if err == nil {
			return text, true
		}
	}
	return "", false
}

func decodeUTF8(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", errInvalidUTF8
	}
	return string(data), nil
}

func charmapDecoder(cm *charmap.Charmap) func([]byte) (string, error) {
	return func(data []byte) (string, error) {
		out, err := cm.NewDecoder().Bytes(data)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
}
