package router

import "testing"

func TestWriteGuardBlocksFileModifyingIdioms(t *testing.T) {
	blocked := []string{
		`echo "hi" > out.txt`,
		"cat <<EOF > file.txt\nhello\nEOF",
		`sed -i 's/a/b/' file.txt`,
		`sed 's/a/b/' file.txt > out.txt`,
		`bash -c "echo hi > out.txt"`,
	}
	for _, cmd := range blocked {
		if err := checkWriteGuard(cmd); err == nil {
			t.Errorf("expected %q to be blocked", cmd)
		}
	}
}

func TestWriteGuardAllowsPlainCommands(t *testing.T) {
	allowed := []string{
		"ls -la",
		"pwd",
		"grep foo bar.txt",
		"echo hi 2>&1",
		"cmd 2>&1 | tee -a /dev/null",
	}
	for _, cmd := range allowed {
		if err := checkWriteGuard(cmd); err != nil {
			t.Errorf("expected %q to be allowed, got %v", cmd, err)
		}
	}
}

func TestUnwrapBashC(t *testing.T) {
	got := unwrapBashC(`bash -c "echo hi > out.txt"`)
	want := "echo hi > out.txt"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	got = unwrapBashC("ls -la")
	if got != "ls -la" {
		t.Fatalf("expected passthrough, got %q", got)
	}
}
