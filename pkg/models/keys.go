package models

import (
	"fmt"
)

// LibraryKey identifies a library on a specific server.
type LibraryKey struct {
	ServerUUID string `json:"server_uuid" validate:"required"`
	Name       string `json:"name" validate:"required"`
}

func (k LibraryKey) String() string {
	return fmt.Sprintf("%s/%s", k.ServerUUID, k.Name)
}

// BookKey is the primary key used for books everywhere: the numeric id is
// only unique within a library.
type BookKey struct {
	ServerUUID  string `json:"server_uuid"`
	LibraryName string `json:"library_name"`
	ID          int    `json:"id"`
}

func (k BookKey) Library() LibraryKey {
	return LibraryKey{ServerUUID: k.ServerUUID, Name: k.LibraryName}
}

func (k BookKey) String() string {
	return fmt.Sprintf("%s/%s/%d", k.ServerUUID, k.LibraryName, k.ID)
}

// Less orders keys by server, then library, then id.
func (k BookKey) Less(o BookKey) bool {
	if k.ServerUUID != o.ServerUUID {
		return k.ServerUUID < o.ServerUUID
	}
	if k.LibraryName != o.LibraryName {
		return k.LibraryName < o.LibraryName
	}
	return k.ID < o.ID
}
