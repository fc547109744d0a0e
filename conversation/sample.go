package conversation

import (
	"context"
	"log/slog"
)

// sampleThread is one pre-seeded demo conversation.
type sampleThread struct {
	title    string
	exchange []Message // appended after the greeting, oldest first
}

// SeedSamples populates the store with demo conversations on first start.
// It is a no-op when the store already holds conversations.
func SeedSamples(ctx context.Context, store Store) error {
	existing, err := store.List()
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	samples := []sampleThread{
		{
			title: "Tư vấn dinh dưỡng",
			exchange: []Message{
				{Author: AuthorUser, Text: "Bữa trưa bán trú hôm nay có phù hợp với con bị dị ứng hải sản không?"},
				{Author: AuthorAssistant, Text: "Bạn nên kiểm tra thực đơn bán trú trong mục thông báo của trường và báo cho phòng y tế về tình trạng dị ứng của con."},
			},
		},
		{
			title: "Lịch tiêm chủng",
			exchange: []Message{
				{Author: AuthorUser, Text: "Khi nào trường tổ chức tiêm nhắc cho khối 6?"},
				{Author: AuthorAssistant, Text: "Lịch tiêm nhắc thường được thông báo trước hai tuần. Bạn có thể xem mục thông báo hoặc hỏi trực tiếp phòng y tế."},
			},
		},
	}

	// Seed oldest first so the newest sample ends up at the top of the list.
	for i := len(samples) - 1; i >= 0; i-- {
		sample := samples[i]
		meta, err := store.Create(ctx)
		if err != nil {
			return err
		}
		for _, msg := range sample.exchange {
			var stamped Message
			switch msg.Author {
			case AuthorUser:
				stamped = NewUserMessage(msg.Text)
			default:
				stamped = NewAssistantMessage(msg.Text, nil)
			}
			if err := store.AppendMessage(ctx, meta.ID, stamped); err != nil {
				return err
			}
		}
		if err := store.InferTitle(ctx, meta.ID, sample.title); err != nil {
			return err
		}
	}

	slog.Info("seeded sample conversations", "count", len(samples))
	return nil
}
