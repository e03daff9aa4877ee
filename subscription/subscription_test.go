package subscription

import "testing"

func TestTopicPattern(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
		want string
	}{
		{
			name: "method and plain path",
			spec: Spec{Kind: Request, Path: "echo", Method: "POST"},
			want: "request.*.POST.echo",
		},
		{
			name: "no method wildcards",
			spec: Spec{Kind: Request, Path: "echo"},
			want: "request.*.*.echo",
		},
		{
			name: "nested path segments become dots",
			spec: Spec{Kind: Request, Path: "orders/new", Method: "GET"},
			want: "request.*.GET.orders.new",
		},
		{
			name: "literal dots in path are escaped first",
			spec: Spec{Kind: Request, Path: "v1.2/status", Method: "GET"},
			want: "request.*.GET.v1_DOT_2.status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.spec.TopicPattern(); got != tt.want {
				t.Errorf("TopicPattern() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEscapePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"echo", "echo"},
		{"a/b/c", "a.b.c"},
		{"file.txt", "file_DOT_txt"},
		{"v1.0/users", "v1_DOT_0.users"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := EscapePath(tt.path); got != tt.want {
			t.Errorf("EscapePath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
