package domain

import (
	"github.com/jzy12306/lingtuzhipu-sub000/internal/domain/kg"
)

type Entity = kg.Entity
type Relation = kg.Relation
type Conflict = kg.Conflict
type ConflictType = kg.ConflictType
type Severity = kg.Severity
type GraphSyncEvent = kg.GraphSyncEvent
type DocumentStatusUpdate = kg.DocumentStatusUpdate
