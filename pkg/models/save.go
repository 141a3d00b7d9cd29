package models

// TabGroupDimensions positions a restored tab group on screen. All fields are
// integer pixels.
type TabGroupDimensions struct {
	X              int `json:"x"`
	Y              int `json:"y"`
	Width          int `json:"width"`
	TabGroupHeight int `json:"tabGroupHeight"`
	AppHeight      int `json:"appHeight"`
}

// TabGroupInfo describes a tab group's strip and activation state in a save
// blob.
type TabGroupInfo struct {
	URL        string             `json:"url"`
	Active     WindowID           `json:"active"`
	Dimensions TabGroupDimensions `json:"dimensions"`
}

// TabBlob is the serialized form of one tab group.
type TabBlob struct {
	Tabs      []WindowID   `json:"tabs"`
	GroupInfo TabGroupInfo `json:"groupInfo"`
}

// SaveBlob is the full serialized tab layout of a desktop.
type SaveBlob []TabBlob
