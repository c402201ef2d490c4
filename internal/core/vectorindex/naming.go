package vectorindex

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode"
)

const maxSafeNameLength = 30

// CollectionName は所有者・プロジェクト名・取り込み時刻・試行 ID からコレクション名を生成する。
// 形式は user{owner}_{name}_{hash8} で、英数字と _ - のみを含む。
// attemptID には取り込みごとに一意な値（プロジェクト ID）を渡す。
func CollectionName(ownerID, projectName string, at time.Time, attemptID string) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s_%s_%d_%s", ownerID, projectName, at.UnixNano(), attemptID)))
	suffix := hex.EncodeToString(sum[:])[:8]

	name := fmt.Sprintf("user%s_%s_%s", sanitize(ownerID, 0), sanitize(projectName, maxSafeNameLength), suffix)
	if len(name) > 63 {
		// 所有者 ID が長い場合でも 63 文字に収める（ハッシュ部分は残す）
		name = name[:54] + "_" + suffix
	}
	return name
}

// sanitize は小文字化・空白の置換・切り詰めを行い、英数字と _ - 以外を取り除く
func sanitize(s string, limit int) string {
	s = strings.ReplaceAll(strings.ToLower(s), " ", "_")
	if limit > 0 {
		if r := []rune(s); len(r) > limit {
			s = string(r[:limit])
		}
	}

	var b strings.Builder
	for _, r := range s {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
