package arxiv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:arxiv="http://arxiv.org/schemas/atom"
      xmlns:opensearch="http://a9.com/-/spec/opensearch/1.1/">
  <title>ArXiv Query</title>
  <opensearch:totalResults>2</opensearch:totalResults>
  <opensearch:startIndex>0</opensearch:startIndex>
  <entry>
    <id>http://arxiv.org/abs/2403.01234v2</id>
    <title>Scaling Laws for
        Neural Language Models</title>
    <summary>  We study empirical scaling laws
        for language model performance.  </summary>
    <published>2024-03-10T18:30:00Z</published>
    <updated>2024-03-11T09:00:00Z</updated>
    <author><name>Jane Doe</name></author>
    <author><name>John Smith</name></author>
    <arxiv:primary_category term="cs.LG"/>
    <category term="cs.LG"/>
    <category term="cs.AI"/>
    <link href="http://arxiv.org/abs/2403.01234v2" rel="alternate" type="text/html"/>
    <link href="http://arxiv.org/pdf/2403.01234v2" rel="related" type="application/pdf" title="pdf"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2403.05678v1</id>
    <title>Short Paper</title>
    <summary>Abstract.</summary>
    <published>2024-03-10T08:00:00Z</published>
    <updated>2024-03-10T08:00:00Z</updated>
    <author><name>A. Author</name></author>
    <category term="cs.AI"/>
  </entry>
</feed>`

func TestParseFeed(t *testing.T) {
	t.Parallel()

	papers, skipped, err := parseFeed([]byte(sampleFeed))
	require.NoError(t, err)
	require.Zero(t, skipped)
	require.Len(t, papers, 2)

	p := papers[0]
	require.Equal(t, "2403.01234", p.ArxivID)
	require.Equal(t, "Scaling Laws for Neural Language Models", p.Title)
	require.Equal(t, "We study empirical scaling laws for language model performance.", p.Abstract)
	require.Equal(t, []string{"Jane Doe", "John Smith"}, p.Authors)
	require.Equal(t, "cs.LG", p.PrimaryCategory)
	require.Equal(t, []string{"cs.LG", "cs.AI"}, p.Categories)
	require.Equal(t, "http://arxiv.org/abs/2403.01234v2", p.AbsURL)
	require.Equal(t, "http://arxiv.org/pdf/2403.01234v2", p.PDFURL)
	require.Equal(t, time.Date(2024, 3, 10, 18, 30, 0, 0, time.UTC), p.PublishedAt)
	require.Equal(t, time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC), p.UpdatedAt)

	// No explicit primary category falls back to the first category term.
	require.Equal(t, "cs.AI", papers[1].PrimaryCategory)
	// No alternate link falls back to the entry id.
	require.Equal(t, "http://arxiv.org/abs/2403.05678v1", papers[1].AbsURL)
}

func TestParseFeedEmpty(t *testing.T) {
	t.Parallel()

	empty := `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>ArXiv Query</title>
</feed>`
	papers, skipped, err := parseFeed([]byte(empty))
	require.NoError(t, err)
	require.Zero(t, skipped)
	require.Nil(t, papers)
}

func TestParseFeedSkipsMalformedEntries(t *testing.T) {
	t.Parallel()

	mixed := `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2403.00001v1</id>
    <title>Good Entry</title>
  </entry>
  <entry>
    <title>Missing ID</title>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2403.00002v1</id>
  </entry>
</feed>`
	papers, skipped, err := parseFeed([]byte(mixed))
	require.NoError(t, err)
	require.Equal(t, 2, skipped)
	require.Len(t, papers, 1)
	require.Equal(t, "2403.00001", papers[0].ArxivID)
}

func TestParseFeedRejectsTruncatedXML(t *testing.T) {
	t.Parallel()

	_, _, err := parseFeed([]byte(`<?xml version="1.0"?><feed><entry><id>http`))
	require.Error(t, err)
}

func TestArxivID(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"http://arxiv.org/abs/2403.01234v2":  "2403.01234",
		"http://arxiv.org/abs/2403.01234":    "2403.01234",
		"http://arxiv.org/abs/math/0211159v1": "math/0211159",
		"2403.01234v1":                       "2403.01234",
	}
	for in, want := range cases {
		require.Equal(t, want, arxivID(in), "input %q", in)
	}
}
