package githubpr

// RepositoryInfo describes the repository a pull request belongs to.
type RepositoryInfo struct {
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	Owner       string `json:"owner"`
	Language    string `json:"language"`
	Description string `json:"description"`
}

// PRData holds the pull request metadata used by the analysis pipeline.
type PRData struct {
	Number       int            `json:"number"`
	Title        string         `json:"title"`
	Body         string         `json:"body"`
	State        string         `json:"state"`
	Author       string         `json:"author"`
	CreatedAt    string         `json:"created_at"`
	UpdatedAt    string         `json:"updated_at"`
	BaseBranch   string         `json:"base_branch"`
	HeadBranch   string         `json:"head_branch"`
	BaseSHA      string         `json:"base_sha"`
	HeadSHA      string         `json:"head_sha"`
	Additions    int            `json:"additions"`
	Deletions    int            `json:"deletions"`
	ChangedFiles int            `json:"changed_files"`
	Commits      int            `json:"commits"`
	URL          string         `json:"url"`
	Repository   RepositoryInfo `json:"repository"`
}

// FileDiff describes one changed file in a pull request. Content is nil
// when the file was removed or its content could not be fetched.
type FileDiff struct {
	Filename    string  `json:"filename"`
	Status      string  `json:"status"`
	Additions   int     `json:"additions"`
	Deletions   int     `json:"deletions"`
	Changes     int     `json:"changes"`
	Patch       string  `json:"patch"`
	Language    string  `json:"language,omitempty"`
	BlobURL     string  `json:"blob_url,omitempty"`
	RawURL      string  `json:"raw_url,omitempty"`
	ContentsURL string  `json:"contents_url,omitempty"`
	Content     *string `json:"content"`
}

// PRBundle is the unit stored in the PR-data cache: metadata plus diffs
// fetched in one pass.
type PRBundle struct {
	PR    PRData     `json:"pr"`
	Diffs []FileDiff `json:"diffs"`
}
