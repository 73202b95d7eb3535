package logging

import "log/slog"

// Domain identifiers

func Room(id string) slog.Attr {
	return slog.String("room_id", id)
}

func Conn(id string) slog.Attr {
	return slog.String("conn_id", id)
}

func User(id string) slog.Attr {
	return slog.String("user_id", id)
}

func Seq(seq int64) slog.Attr {
	return slog.Int64("seq", seq)
}

// Error handling

func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
