package gitobject

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/grafana/monogit/protocol/hash"
	"github.com/grafana/monogit/protocol/object"
)

// Commit is the parsed view of a commit object's payload:
//
//	tree <hex>
//	parent <hex>        (zero or more)
//	author <sign>
//	committer <sign>
//	<blank line>
//	<message>
type Commit struct {
	Tree      hash.Hash
	Parents   []hash.Hash
	Author    object.Identity
	Committer object.Identity
	Message   string
}

// ParseCommit parses a commit object's payload into a structured Commit.
func ParseCommit(payload []byte) (*Commit, error) {
	c := &Commit{}

	scanner := bufio.NewScanner(bytes.NewReader(payload))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	haveAuthor, haveCommitter := false, false
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}

		switch {
		case strings.HasPrefix(line, "tree "):
			id, err := hash.FromHex(strings.TrimPrefix(line, "tree "))
			if err != nil {
				return nil, fmt.Errorf("commit tree line: %w", err)
			}
			c.Tree = id
		case strings.HasPrefix(line, "parent "):
			id, err := hash.FromHex(strings.TrimPrefix(line, "parent "))
			if err != nil {
				return nil, fmt.Errorf("commit parent line: %w", err)
			}
			c.Parents = append(c.Parents, id)
		case strings.HasPrefix(line, "author "):
			id, err := object.ParseIdentity(strings.TrimPrefix(line, "author "))
			if err != nil {
				return nil, fmt.Errorf("commit author line: %w", err)
			}
			c.Author = *id
			haveAuthor = true
		case strings.HasPrefix(line, "committer "):
			id, err := object.ParseIdentity(strings.TrimPrefix(line, "committer "))
			if err != nil {
				return nil, fmt.Errorf("commit committer line: %w", err)
			}
			c.Committer = *id
			haveCommitter = true
		}
	}

	if c.Tree == nil {
		return nil, fmt.Errorf("commit missing tree line")
	}
	if !haveAuthor || !haveCommitter {
		return nil, fmt.Errorf("commit missing author or committer line")
	}

	var msg bytes.Buffer
	for scanner.Scan() {
		msg.WriteString(scanner.Text())
		msg.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning commit message: %w", err)
	}
	c.Message = msg.String()

	return c, nil
}

// Encode serializes a Commit back into its payload form.
func (c *Commit) Encode() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.Tree)
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", p)
	}
	fmt.Fprintf(&buf, "author %s <%s> %d %s\n", c.Author.Name, c.Author.Email, c.Author.Timestamp, c.Author.Timezone)
	fmt.Fprintf(&buf, "committer %s <%s> %d %s\n", c.Committer.Name, c.Committer.Email, c.Committer.Timestamp, c.Committer.Timezone)
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}
