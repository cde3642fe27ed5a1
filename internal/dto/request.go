package dto

import "mime/multipart"

// StageRequest is sent by the proxy to the owning node. ObjectID may be
// empty when a node is used without a proxy in front of it.
type StageRequest struct {
	ObjectID    string `json:"object_id"`
	Name        string `json:"name" binding:"required"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	OwnerUserID uint64 `json:"owner_user_id" binding:"required"`
	Data        []byte `json:"data"`
}

// UploadRequest is the public multipart upload form.
type UploadRequest struct {
	OwnerUserID uint64                `form:"owner_user_id" binding:"required"`
	File        *multipart.FileHeader `form:"file" binding:"required"`
}

type CommitRequest struct {
	DocumentID uint64 `json:"document_id" binding:"required"`
}

type DiscardRequest struct {
	ObjectIDs []string `json:"object_ids"`
}
