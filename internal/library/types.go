package library

import "paperbridge/internal/models"

type tagRef struct {
	Tag  string `json:"tag"`
	Type int    `json:"type,omitempty"`
}

type itemData struct {
	Key          string   `json:"key"`
	Version      int      `json:"version"`
	ItemType     string   `json:"itemType"`
	Title        string   `json:"title,omitempty"`
	ParentItem   string   `json:"parentItem,omitempty"`
	LinkMode     string   `json:"linkMode,omitempty"`
	ContentType  string   `json:"contentType,omitempty"`
	Filename     string   `json:"filename,omitempty"`
	MD5          string   `json:"md5,omitempty"`
	Tags         []tagRef `json:"tags"`
	DateModified string   `json:"dateModified,omitempty"`
}

type itemEnvelope struct {
	Key     string   `json:"key"`
	Version int      `json:"version"`
	Data    itemData `json:"data"`
}

type tagsPatch struct {
	Tags []tagRef `json:"tags"`
}

type tagsUpdate struct {
	Key     string   `json:"key"`
	Version int      `json:"version"`
	Tags    []tagRef `json:"tags"`
}

// WriteResult is the library's response to a multi-object write.
type WriteResult struct {
	Success   map[string]string `json:"success"`
	Unchanged map[string]string `json:"unchanged"`
	Failed    map[string]struct {
		Key     string `json:"key"`
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"failed"`
}

type uploadAuthorization struct {
	Exists      int    `json:"exists"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Prefix      string `json:"prefix"`
	Suffix      string `json:"suffix"`
	UploadKey   string `json:"uploadKey"`
}

func toTagRefs(tags []string) []tagRef {
	out := make([]tagRef, 0, len(tags))
	for _, tag := range tags {
		out = append(out, tagRef{Tag: tag})
	}
	return out
}

func (e itemEnvelope) item() models.LibraryItem {
	tags := make([]string, 0, len(e.Data.Tags))
	for _, t := range e.Data.Tags {
		tags = append(tags, t.Tag)
	}
	return models.LibraryItem{
		Key:     e.Key,
		Version: e.Version,
		Title:   e.Data.Title,
		Tags:    tags,
	}
}

func (e itemEnvelope) attachment() models.Attachment {
	att := models.Attachment{
		Key:         e.Key,
		ParentKey:   e.Data.ParentItem,
		Version:     e.Version,
		Title:       e.Data.Title,
		Filename:    e.Data.Filename,
		ContentType: e.Data.ContentType,
		LinkMode:    e.Data.LinkMode,
		MD5:         e.Data.MD5,
	}
	if modified, err := models.ParseTimestamp(e.Data.DateModified); err == nil {
		att.DateModified = &modified
	}
	return att
}
