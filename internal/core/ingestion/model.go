package ingestion

// ChunkMetadata はチャンクの由来を表すメタデータ
// ChunkIndex は 0 始まりで、常に ChunkIndex < TotalChunks を満たす
type ChunkMetadata struct {
	FilePath      string `json:"file_path"`
	FileName      string `json:"file_name"`
	FileExtension string `json:"file_extension"`
	ChunkIndex    int    `json:"chunk_index"`
	TotalChunks   int    `json:"total_chunks"`
}

// Result は取り込み結果
// Chunks / Metadatas / IDs は同じ長さで、同じ位置が同じチャンクを表す
type Result struct {
	Chunks    []string
	Metadatas []ChunkMetadata
	IDs       []string

	// FileCount はチャンクを 1 つ以上生成したファイル数
	FileCount int
	// SkippedFiles はフィルタ通過後に読み込めなかった・空だったファイル数
	SkippedFiles int
}

// Len はチャンク数を返す
func (r *Result) Len() int {
	return len(r.Chunks)
}

// IsEmpty は処理可能なファイルが 1 つも無かったかを返す
func (r *Result) IsEmpty() bool {
	return len(r.Chunks) == 0
}

// DistinctFiles は出現順を保ったまま重複を除いたファイルパス一覧を返す
func (r *Result) DistinctFiles() []string {
	seen := make(map[string]struct{}, len(r.Metadatas))
	files := make([]string, 0)
	for _, m := range r.Metadatas {
		if _, ok := seen[m.FilePath]; ok {
			continue
		}
		seen[m.FilePath] = struct{}{}
		files = append(files, m.FilePath)
	}
	return files
}

func (r *Result) add(text string, meta ChunkMetadata, id string) {
	r.Chunks = append(r.Chunks, text)
	r.Metadatas = append(r.Metadatas, meta)
	r.IDs = append(r.IDs, id)
}
