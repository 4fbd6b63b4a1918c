package services

import (
	types "github.com/jzy12306/lingtuzhipu-sub000/internal/domain"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/platform/logger"
)

// DocumentNotifier receives document lifecycle updates after graph writes.
// Delivery is fire-and-forget; a failed notification never fails the write.
type DocumentNotifier interface {
	DocumentStatusChanged(update types.DocumentStatusUpdate)
}

type logNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(baseLog *logger.Logger) DocumentNotifier {
	return &logNotifier{log: baseLog.With("service", "DocumentNotifier")}
}

func (n *logNotifier) DocumentStatusChanged(update types.DocumentStatusUpdate) {
	if n == nil || n.log == nil || update.DocumentID == "" {
		return
	}
	n.log.Info("document status changed",
		"document_id", update.DocumentID,
		"status", update.Status,
		"detail", update.Detail,
		"entity_count", update.EntityCount,
		"relation_count", update.RelationCount,
	)
}
