package api

import (
	"context"
	"encoding/json"
	"io"
	"net/url"

	"github.com/a-essam23/go-classroom/pkg/httpclient"
)

// Material covers /material, the per-course file tree.
type Material struct{ d Doer }

type NodeType string

const (
	NodeFile   NodeType = "file"
	NodeFolder NodeType = "folder"
)

type NewNode struct {
	Name         string   `json:"name"`
	Path         string   `json:"path"`
	Type         NodeType `json:"type"`
	Size         int64    `json:"size,omitempty"`
	ParentNodeID int64    `json:"parent_node_id"`
}

type BatchResult struct {
	DeletedCount int `json:"deleted_count"`
	FailedCount  int `json:"failed_count"`
}

func (m *Material) CourseRootNodeID(ctx context.Context, courseName string) (int64, error) {
	resp, err := m.d.Send(ctx, get, "material/get-course-root-node-id", nil, opts(query("name", courseName)))
	if err != nil {
		return 0, err
	}
	return resp.Get("node_id").Int(), nil
}

// Children lists the direct children of a node.
func (m *Material) Children(ctx context.Context, nodeID int64) (json.RawMessage, error) {
	return data(ctx, m.d, get, "material/get-next-depth-tree", nil, opts(query("node_id", itoa(nodeID))))
}

func (m *Material) AddNode(ctx context.Context, in NewNode) (int64, error) {
	resp, err := m.d.Send(ctx, post, "material/add-node", in, nil)
	if err != nil {
		return 0, err
	}
	return resp.Get("node_id").Int(), nil
}

func (m *Material) DeleteNode(ctx context.Context, nodeID int64) (Status, error) {
	return status(ctx, m.d, post, "material/delete-node", map[string]int64{"node_id": nodeID})
}

func (m *Material) DeleteBatch(ctx context.Context, nodeIDs []int64) (BatchResult, error) {
	return envelope[BatchResult](ctx, m.d, post, "material/delete-batch", map[string]any{"node_ids": nodeIDs}, nil)
}

func (m *Material) AddCourseRoot(ctx context.Context, name, path string) (int64, error) {
	if path == "" {
		path = "/"
	}
	resp, err := m.d.Send(ctx, post, "material/add-course-root", map[string]string{"name": name, "path": path}, nil)
	if err != nil {
		return 0, err
	}
	return resp.Get("node_id").Int(), nil
}

func (m *Material) DeleteCourseRoot(ctx context.Context, name string) (Status, error) {
	return status(ctx, m.d, post, "material/delete-course-root", map[string]string{"name": name})
}

func (m *Material) Upload(ctx context.Context, parentNodeID int64, path, name string, content io.Reader) (int64, error) {
	resp, err := m.d.Send(ctx, post, "material/upload-file", nil, &httpclient.RequestOptions{
		Form:  url.Values{"parent_node_id": {itoa(parentNodeID)}, "path": {path}},
		Files: []httpclient.File{{Field: "file", Name: name, Content: content}},
	})
	if err != nil {
		return 0, err
	}
	return resp.Get("node_id").Int(), nil
}

func (m *Material) Download(ctx context.Context, nodeID int64) ([]byte, error) {
	return download(ctx, m.d, get, "material/download-file/"+itoa(nodeID), nil, nil)
}

// DownloadBatch returns a zip archive of the given nodes.
func (m *Material) DownloadBatch(ctx context.Context, nodeIDs []int64) ([]byte, error) {
	return download(ctx, m.d, post, "material/download-batch", map[string]any{"node_ids": nodeIDs}, nil)
}

// Chapter covers /chapter, course chapters and their videos.
type Chapter struct{ d Doer }

type NewChapter struct {
	CourseName  string `json:"course_name"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	ParentID    int64  `json:"parent_id,omitempty"`
	OrderNum    int    `json:"order_num,omitempty"`
}

type ChapterPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	OrderNum    *int    `json:"order_num,omitempty"`
}

func (c *Chapter) Tree(ctx context.Context, courseName string) (json.RawMessage, error) {
	return data(ctx, c.d, get, "chapter/tree", nil, opts(query("course_name", courseName)))
}

func (c *Chapter) Add(ctx context.Context, in NewChapter) (int64, error) {
	resp, err := c.d.Send(ctx, post, "chapter/add", in, nil)
	if err != nil {
		return 0, err
	}
	return resp.Get("chapter_id").Int(), nil
}

func (c *Chapter) Update(ctx context.Context, chapterID int64, patch ChapterPatch) (Status, error) {
	return status(ctx, c.d, post, "chapter/update", struct {
		ChapterID int64 `json:"chapter_id"`
		ChapterPatch
	}{chapterID, patch})
}

func (c *Chapter) Delete(ctx context.Context, chapterID int64) (Status, error) {
	return status(ctx, c.d, post, "chapter/delete", map[string]int64{"chapter_id": chapterID})
}

func (c *Chapter) UploadVideo(ctx context.Context, chapterID int64, title, description, name string, content io.Reader) (int64, error) {
	form := url.Values{"chapter_id": {itoa(chapterID)}, "title": {title}}
	if description != "" {
		form.Set("description", description)
	}
	resp, err := c.d.Send(ctx, post, "chapter/upload-video", nil, &httpclient.RequestOptions{
		Form:  form,
		Files: []httpclient.File{{Field: "file", Name: name, Content: content}},
	})
	if err != nil {
		return 0, err
	}
	return resp.Get("video_id").Int(), nil
}

func (c *Chapter) DeleteVideo(ctx context.Context, videoID int64) (Status, error) {
	return status(ctx, c.d, post, "chapter/delete-video", map[string]int64{"video_id": videoID})
}

// UpdateProgress records how far, in seconds, the user has watched a video.
func (c *Chapter) UpdateProgress(ctx context.Context, videoID int64, progress int, completed bool) (Status, error) {
	return status(ctx, c.d, post, "chapter/update-progress", map[string]any{
		"video_id":  videoID,
		"progress":  progress,
		"completed": completed,
	})
}

// Classify covers /classify, tagging of material files.
type Classify struct{ d Doer }

type Tag struct {
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

type Classifications struct {
	Classifications []json.RawMessage `json:"classifications"`
	ClassifiedBy    string            `json:"classified_by"`
}

func (c *Classify) File(ctx context.Context, filename string) (json.RawMessage, error) {
	return body(ctx, c.d, post, "classify/classify-file", map[string]string{"filename": filename}, nil)
}

func (c *Classify) Node(ctx context.Context, nodeID int64) (json.RawMessage, error) {
	return body(ctx, c.d, post, "classify/classify-node", map[string]int64{"node_id": nodeID}, nil)
}

// AutoOrganize moves the files under a node into per-category folders.
func (c *Classify) AutoOrganize(ctx context.Context, nodeID int64, createFolders bool) (json.RawMessage, error) {
	return body(ctx, c.d, post, "classify/auto-organize", map[string]any{
		"node_id":        nodeID,
		"create_folders": createFolders,
	}, nil)
}

func (c *Classify) SuggestCategories(ctx context.Context, filenames []string) (json.RawMessage, error) {
	resp, err := c.d.Send(ctx, post, "classify/suggest-categories", map[string]any{"filenames": filenames}, nil)
	if err != nil {
		return nil, err
	}
	return rawOrEmptyList(resp, "suggestions"), nil
}

func (c *Classify) Categories(ctx context.Context) (json.RawMessage, error) {
	resp, err := c.d.Send(ctx, get, "classify/get-categories", nil, nil)
	if err != nil {
		return nil, err
	}
	return rawOrEmptyList(resp, "categories"), nil
}

func (c *Classify) Tags(ctx context.Context) (json.RawMessage, error) {
	resp, err := c.d.Send(ctx, get, "classify/tags", nil, nil)
	if err != nil {
		return nil, err
	}
	return rawOrEmptyList(resp, "tags"), nil
}

func (c *Classify) CreateTag(ctx context.Context, tag Tag) (int64, error) {
	resp, err := c.d.Send(ctx, post, "classify/tags", tag, nil)
	if err != nil {
		return 0, err
	}
	return resp.Get("tag_id").Int(), nil
}

func (c *Classify) UpdateTag(ctx context.Context, tagID int64, tag Tag) (Status, error) {
	return status(ctx, c.d, put, "classify/tags/"+itoa(tagID), tag)
}

func (c *Classify) DeleteTag(ctx context.Context, tagID int64) (Status, error) {
	return status(ctx, c.d, del, "classify/tags/"+itoa(tagID), nil)
}

func (c *Classify) SaveClassifications(ctx context.Context, in Classifications) (json.RawMessage, error) {
	return body(ctx, c.d, post, "classify/classify-files", in, nil)
}

func (c *Classify) SaveAIClassifications(ctx context.Context, in Classifications) (json.RawMessage, error) {
	return body(ctx, c.d, post, "classify/save-ai-classifications", in, nil)
}

func (c *Classify) AIClassification(ctx context.Context, nodeID int64) (json.RawMessage, error) {
	return body(ctx, c.d, get, "classify/get-ai-classification/"+itoa(nodeID), nil, nil)
}

func (c *Classify) FileClassifications(ctx context.Context, nodeID int64) (json.RawMessage, error) {
	return body(ctx, c.d, get, "classify/file-classifications/"+itoa(nodeID), nil, nil)
}

func (c *Classify) NodeClassifications(ctx context.Context, nodeID int64) (json.RawMessage, error) {
	return body(ctx, c.d, get, "classify/node-classifications/"+itoa(nodeID), nil, nil)
}

// RemoveClassification drops one tag from a file, or all of them when tagID is 0.
func (c *Classify) RemoveClassification(ctx context.Context, nodeID, tagID int64) (Status, error) {
	payload := map[string]any{"node_id": nodeID}
	if tagID > 0 {
		payload["tag_id"] = tagID
	}
	return status(ctx, c.d, post, "classify/remove-classification", payload)
}

func rawOrEmptyList(resp *httpclient.Response, path string) json.RawMessage {
	if v := resp.Get(path); v.Exists() {
		return json.RawMessage(v.Raw)
	}
	return json.RawMessage("[]")
}
