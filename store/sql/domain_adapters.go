package sqlstore

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-entitygraph/core"
	"github.com/google/uuid"
)

func toPropertyValues(properties []core.Property) []propertyValue {
	out := make([]propertyValue, 0, len(properties))
	for _, property := range properties {
		out = append(out, propertyValue{Name: property.Name, Type: property.Type, Value: property.Value})
	}
	return out
}

func fromPropertyValues(values []propertyValue) []core.Property {
	if len(values) == 0 {
		return nil
	}
	out := make([]core.Property, 0, len(values))
	for _, value := range values {
		out = append(out, core.Property{Name: value.Name, Type: value.Type, Value: value.Value})
	}
	return out
}

// keywordTypeOf returns the "type" property that keyword searches filter on.
func keywordTypeOf(properties []core.Property) string {
	for _, property := range properties {
		if property.Name == "type" && property.Value != nil {
			return fmt.Sprint(property.Value)
		}
	}
	return ""
}

func newEntityRevisionRecord(
	id uuid.UUID,
	rev int,
	collection core.Collection,
	types []string,
	properties []core.Property,
	created core.ChangeStamp,
	modified core.ChangeStamp,
) *entityRevisionRecord {
	display := core.DisplayText(properties)
	return &entityRevisionRecord{
		ID:          uuid.NewString(),
		EntityID:    id.String(),
		Rev:         rev,
		Collection:  collection.Name,
		Types:       append([]string(nil), types...),
		Properties:  toPropertyValues(properties),
		CreatedBy:   created.UserID,
		CreatedAtMS: created.Timestamp,
		ModifiedBy:  modified.UserID,
		ModifiedMS:  modified.Timestamp,
		IsLatest:    true,
		SearchText:  strings.ToLower(display),
		KeywordType: keywordTypeOf(properties),
	}
}

func (r *entityRevisionRecord) toDomain() core.ReadEntity {
	if r == nil {
		return core.ReadEntity{}
	}
	modified := core.ChangeStamp{UserID: r.ModifiedBy, Timestamp: r.ModifiedMS}
	return core.ReadEntity{
		ID:         parseUUID(r.EntityID),
		Collection: r.Collection,
		Types:      append([]string(nil), r.Types...),
		Rev:        r.Rev,
		Created:    core.ChangeStamp{UserID: r.CreatedBy, Timestamp: r.CreatedAtMS},
		Modified:   &modified,
		Deleted:    r.Deleted,
		PID:        r.PID,
		Properties: fromPropertyValues(r.Properties),
	}
}

func (r *relationRevisionRecord) toRef() core.RelationRef {
	if r == nil {
		return core.RelationRef{}
	}
	return core.RelationRef{
		ID:         parseUUID(r.RelationID),
		Rev:        r.Rev,
		TypeName:   r.TypeName,
		SourceID:   parseUUID(r.SourceID),
		TargetID:   parseUUID(r.TargetID),
		TypeID:     parseUUID(r.TypeID),
		Accepted:   r.Accepted,
		Collection: r.Collection,
	}
}

func (r *redirectRecord) toDomain() core.Redirect {
	if r == nil {
		return core.Redirect{}
	}
	return core.Redirect{
		URI: r.URI,
		Lookup: core.EntityLookup{
			Collection: r.Collection,
			TimID:      parseUUID(r.EntityID),
			Rev:        r.Rev,
		},
	}
}

func toNamespaces(namespaces []namespaceRecord, collections []collectionRecord) core.Namespaces {
	byNamespace := make(map[string]map[string]core.Collection, len(namespaces))
	for _, collection := range collections {
		if _, ok := byNamespace[collection.NamespaceName]; !ok {
			byNamespace[collection.NamespaceName] = map[string]core.Collection{}
		}
		byNamespace[collection.NamespaceName][collection.Name] = core.Collection{
			Name:           collection.Name,
			EntityTypeName: collection.EntityTypeName,
			AbstractType:   collection.AbstractType,
			NamespaceName:  collection.NamespaceName,
			Unknown:        collection.Unknown,
			Relation:       collection.Relation,
		}
	}
	out := make([]core.Namespace, 0, len(namespaces))
	for _, namespace := range namespaces {
		out = append(out, core.Namespace{
			Name:        namespace.Name,
			Label:       namespace.Label,
			ImageType:   namespace.ImageType,
			Collections: byNamespace[namespace.Name],
		})
	}
	return core.NewNamespaces(out...)
}
