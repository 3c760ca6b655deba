package github

import "time"

// RemoteFile is a repository file read from the contents API. SHA is the
// blob SHA GitHub reported, which doubles as the file's revision marker.
type RemoteFile struct {
	Path    string `json:"path"`
	SHA     string `json:"sha"`
	Content []byte `json:"content"`
}

// TreeEntry places an uploaded blob at a path inside a new tree.
type TreeEntry struct {
	Path string
	SHA  string
}

// Commit is the slice of commit metadata the dashboard surfaces.
type Commit struct {
	SHA     string    `json:"sha"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
	Date    time.Time `json:"date"`
	URL     string    `json:"url,omitempty"`
}

// Wire shapes for the REST and Git Data endpoints. Only the fields we
// read are declared.

type contentsResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	SHA      string `json:"sha"`
}

type refResponse struct {
	Object struct {
		SHA string `json:"sha"`
	} `json:"object"`
}

type commitResponse struct {
	SHA  string `json:"sha"`
	Tree struct {
		SHA string `json:"sha"`
	} `json:"tree"`
	Parents []struct {
		SHA string `json:"sha"`
	} `json:"parents"`
}

type blobRequest struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type shaResponse struct {
	SHA string `json:"sha"`
}

type treeRequest struct {
	BaseTree string          `json:"base_tree,omitempty"`
	Tree     []treeEntryJSON `json:"tree"`
}

type treeEntryJSON struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

type createCommitRequest struct {
	Message string   `json:"message"`
	Tree    string   `json:"tree"`
	Parents []string `json:"parents"`
}

type updateRefRequest struct {
	SHA   string `json:"sha"`
	Force bool   `json:"force"`
}

type listCommitsItem struct {
	SHA    string `json:"sha"`
	URL    string `json:"html_url"`
	Commit struct {
		Message string `json:"message"`
		Author  struct {
			Name string    `json:"name"`
			Date time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}
