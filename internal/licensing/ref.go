package licensing

import (
	"errors"
	"strings"
)

// ErrMalformedRef is returned when a composite collection or key id cannot
// be split into its parts.
var ErrMalformedRef = errors.New("malformed id")

// CollectionRef identifies one collection inside one integration. On the
// wire it is the dash-joined string "integrationID-database-collection";
// database names may themselves contain dashes, so parsing takes the first
// segment as the integration id, the last as the collection name, and
// rejoins everything in between.
type CollectionRef struct {
	IntegrationID string
	Database      string
	Collection    string
}

func (r CollectionRef) String() string {
	return r.IntegrationID + "-" + r.Database + "-" + r.Collection
}

func ParseCollectionRef(id string) (CollectionRef, error) {
	parts := strings.Split(id, "-")
	if len(parts) < 3 {
		return CollectionRef{}, ErrMalformedRef
	}
	return CollectionRef{
		IntegrationID: parts[0],
		Database:      strings.Join(parts[1:len(parts)-1], "-"),
		Collection:    parts[len(parts)-1],
	}, nil
}

// KeyRef identifies one license document inside a collection.
type KeyRef struct {
	CollectionRef
	DocID string
}

func (r KeyRef) String() string {
	return r.CollectionRef.String() + "-" + r.DocID
}

// ParseOwnerKeyRef parses the owner-facing key id
// "integrationID-database-collection-docID": the collection name and doc id
// are the last two segments, the database keeps any interior dashes.
func ParseOwnerKeyRef(id string) (KeyRef, error) {
	parts := strings.Split(id, "-")
	if len(parts) < 4 {
		return KeyRef{}, ErrMalformedRef
	}
	return KeyRef{
		CollectionRef: CollectionRef{
			IntegrationID: parts[0],
			Database:      strings.Join(parts[1:len(parts)-2], "-"),
			Collection:    parts[len(parts)-2],
		},
		DocID: parts[len(parts)-1],
	}, nil
}

// ParseClientKeyRef parses the client-facing key id "collectionID-docID",
// where the doc id is the final segment and the rest is a collection id.
func ParseClientKeyRef(id string) (KeyRef, error) {
	parts := strings.Split(id, "-")
	if len(parts) < 4 {
		return KeyRef{}, ErrMalformedRef
	}
	collRef, err := ParseCollectionRef(strings.Join(parts[:len(parts)-1], "-"))
	if err != nil {
		return KeyRef{}, err
	}
	return KeyRef{CollectionRef: collRef, DocID: parts[len(parts)-1]}, nil
}
