package reqdoc

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"prp/pkg/backlog"
)

var (
	frontmatterDelimiter = regexp.MustCompile(`^---\s*$`)
	phasePattern         = regexp.MustCompile(`^##\s+(P\d+):\s+(.+)$`)
	milestonePattern     = regexp.MustCompile(`^###\s+(P\d+\.M\d+):\s+(.+)$`)
	taskPattern          = regexp.MustCompile(`^####\s+(P\d+\.M\d+\.T\d+):\s+(.+)$`)
	subtaskPattern       = regexp.MustCompile(`^#####\s+(P\d+\.M\d+\.T\d+\.S\d+):\s+(.+)$`)
	fieldPattern         = regexp.MustCompile(`^\*\*([^:]+):\*\*\s*(.*)$`)
)

// Frontmatter is the YAML header of a requirements document.
type Frontmatter struct {
	Version string `yaml:"version"`
	Project string `yaml:"project,omitempty"`
}

// Document is a decomposed requirements document: frontmatter plus the
// derived work-item hierarchy.
type Document struct {
	Frontmatter Frontmatter
	Title       string
	Backlog     *backlog.Backlog
}

// Decompose parses a requirements markdown document into a backlog.
// Structure is conveyed by heading level: ## phase, ### milestone,
// #### task, ##### subtask. Subtask bodies may carry **Points:** and
// **Depends:** fields; remaining lines accrue to the description.
// Numbering may be sparse; ids are taken verbatim from headings.
func Decompose(snapshot *Snapshot) (*Document, error) {
	frontmatter, body, err := splitFrontmatter(snapshot.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to split frontmatter: %w", err)
	}

	doc := &Document{Backlog: backlog.New()}
	if err := yaml.Unmarshal([]byte(frontmatter), &doc.Frontmatter); err != nil {
		return nil, fmt.Errorf("failed to parse YAML frontmatter: %w", err)
	}
	if doc.Frontmatter.Version == "" {
		return nil, fmt.Errorf("frontmatter missing required field: version")
	}

	if err := parseBody(body, doc); err != nil {
		return nil, err
	}
	if err := doc.Backlog.Validate(); err != nil {
		return nil, fmt.Errorf("decomposed hierarchy invalid: %w", err)
	}
	return doc, nil
}

// splitFrontmatter splits markdown into YAML frontmatter and body.
//
//nolint:gocritic // Separate return values are clearer than a struct here.
func splitFrontmatter(markdown string) (frontmatter string, body string, err error) {
	lines := strings.Split(markdown, "\n")
	if len(lines) < 3 {
		return "", "", fmt.Errorf("document too short to contain frontmatter")
	}
	if !frontmatterDelimiter.MatchString(strings.TrimSpace(lines[0])) {
		return "", "", fmt.Errorf("missing frontmatter opening delimiter (---)")
	}

	closingIdx := -1
	for i := 1; i < len(lines); i++ {
		if frontmatterDelimiter.MatchString(strings.TrimSpace(lines[i])) {
			closingIdx = i
			break
		}
	}
	if closingIdx < 0 {
		return "", "", fmt.Errorf("missing frontmatter closing delimiter (---)")
	}

	return strings.Join(lines[1:closingIdx], "\n"), strings.Join(lines[closingIdx+1:], "\n"), nil
}

func parseBody(body string, doc *Document) error {
	var (
		currentPhase     *backlog.Phase
		currentMilestone *backlog.Milestone
		currentTask      *backlog.Task
		currentSubtask   *backlog.Subtask
		descLines        []string
	)

	// flushDesc assigns the accumulated description to whichever item is
	// currently open, innermost first.
	flushDesc := func() {
		desc := strings.TrimSpace(strings.Join(descLines, "\n"))
		descLines = nil
		if desc == "" {
			return
		}
		switch {
		case currentSubtask != nil:
			currentSubtask.Description = desc
		case currentTask != nil:
			currentTask.Description = desc
		case currentMilestone != nil:
			currentMilestone.Description = desc
		case currentPhase != nil:
			currentPhase.Description = desc
		}
	}

	for lineNum, raw := range strings.Split(body, "\n") {
		line := strings.TrimRight(raw, " \t")

		if m := phasePattern.FindStringSubmatch(line); m != nil {
			flushDesc()
			currentPhase = &backlog.Phase{ID: m[1], Title: strings.TrimSpace(m[2])}
			doc.Backlog.Phases = append(doc.Backlog.Phases, currentPhase)
			currentMilestone, currentTask, currentSubtask = nil, nil, nil
			continue
		}
		if m := milestonePattern.FindStringSubmatch(line); m != nil {
			flushDesc()
			if currentPhase == nil {
				return fmt.Errorf("line %d: milestone %s outside any phase", lineNum+1, m[1])
			}
			currentMilestone = &backlog.Milestone{ID: m[1], Title: strings.TrimSpace(m[2])}
			currentPhase.Milestones = append(currentPhase.Milestones, currentMilestone)
			currentTask, currentSubtask = nil, nil
			continue
		}
		if m := taskPattern.FindStringSubmatch(line); m != nil {
			flushDesc()
			if currentMilestone == nil {
				return fmt.Errorf("line %d: task %s outside any milestone", lineNum+1, m[1])
			}
			currentTask = &backlog.Task{ID: m[1], Title: strings.TrimSpace(m[2])}
			currentMilestone.Tasks = append(currentMilestone.Tasks, currentTask)
			currentSubtask = nil
			continue
		}
		if m := subtaskPattern.FindStringSubmatch(line); m != nil {
			flushDesc()
			if currentTask == nil {
				return fmt.Errorf("line %d: subtask %s outside any task", lineNum+1, m[1])
			}
			currentSubtask = &backlog.Subtask{
				ID:          m[1],
				Title:       strings.TrimSpace(m[2]),
				Status:      backlog.StatusPlanned,
				StoryPoints: 1, // Default when no Points field follows
			}
			currentTask.Subtasks = append(currentTask.Subtasks, currentSubtask)
			continue
		}

		// Field lines only apply inside a subtask body.
		if m := fieldPattern.FindStringSubmatch(strings.TrimSpace(line)); m != nil && currentSubtask != nil {
			key := strings.ToLower(strings.TrimSpace(m[1]))
			value := strings.TrimSpace(m[2])
			switch key {
			case "points":
				points, err := strconv.Atoi(value)
				if err != nil || points <= 0 {
					return fmt.Errorf("line %d: subtask %s: invalid points value %q", lineNum+1, currentSubtask.ID, value)
				}
				currentSubtask.StoryPoints = points
			case "depends":
				currentSubtask.Dependencies = parseIDList(value)
			default:
				descLines = append(descLines, line)
			}
			continue
		}

		descLines = append(descLines, line)
	}
	flushDesc()

	if len(doc.Backlog.Phases) == 0 {
		return fmt.Errorf("requirements document contains no phases")
	}
	return nil
}

// parseIDList parses a comma-separated id list, tolerating brackets and quotes.
func parseIDList(value string) []string {
	value = strings.Trim(strings.TrimSpace(value), "[]")
	if value == "" {
		return nil
	}

	var result []string
	for _, part := range strings.Split(value, ",") {
		part = strings.Trim(strings.TrimSpace(part), `"'`)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
