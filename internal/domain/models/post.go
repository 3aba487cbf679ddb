package models

// PostResult describes a successfully created platform post.
type PostResult struct {
	PostID   string `json:"post_id"`
	URL      string `json:"url"`
	Platform string `json:"platform"`
	Caption  string `json:"caption"`
	Status   string `json:"status"`
}

// StagedMedia is a temporarily stored image awaiting publication.
type StagedMedia struct {
	ID     string
	Format string
	Data   []byte
}
