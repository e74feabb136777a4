package storage

const Schema = `
CREATE TABLE IF NOT EXISTS articles (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    title_index TEXT NOT NULL,
    url TEXT NOT NULL UNIQUE,
    summary TEXT,
    text TEXT,
    embedding BLOB,
    token_count INTEGER NOT NULL DEFAULT 0,
    logged_at DATETIME,
    navlog_id TEXT,
    image_key TEXT,
    document_id TEXT,
    parent_document_id TEXT,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_articles_title_index ON articles(title_index);
CREATE INDEX IF NOT EXISTS idx_articles_updated ON articles(updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_articles_logged ON articles(logged_at DESC);

CREATE TABLE IF NOT EXISTS themes (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    title_key TEXT NOT NULL UNIQUE,
    summary TEXT,
    source TEXT NOT NULL,
    embedding BLOB,
    average_distance REAL NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_themes_source ON themes(source);

CREATE TABLE IF NOT EXISTS article_themes (
    theme_id TEXT NOT NULL,
    article_id TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    PRIMARY KEY (theme_id, article_id),
    FOREIGN KEY (theme_id) REFERENCES themes(id) ON DELETE CASCADE,
    FOREIGN KEY (article_id) REFERENCES articles(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_article_themes_article ON article_themes(article_id);

CREATE TABLE IF NOT EXISTS theme_recurrent (
    theme_id TEXT NOT NULL,
    related_id TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    PRIMARY KEY (theme_id, related_id),
    FOREIGN KEY (theme_id) REFERENCES themes(id) ON DELETE CASCADE,
    FOREIGN KEY (related_id) REFERENCES themes(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS theme_sporadic (
    theme_id TEXT NOT NULL,
    related_id TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    PRIMARY KEY (theme_id, related_id),
    FOREIGN KEY (theme_id) REFERENCES themes(id) ON DELETE CASCADE,
    FOREIGN KEY (related_id) REFERENCES themes(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS browses (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    tab_id TEXT NOT NULL UNIQUE,
    logged_at DATETIME,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS browsed (
    article_id TEXT NOT NULL,
    browse_id TEXT NOT NULL,
    count INTEGER NOT NULL DEFAULT 1,
    first_logged_at DATETIME,
    created_at DATETIME NOT NULL,
    PRIMARY KEY (article_id, browse_id),
    FOREIGN KEY (article_id) REFERENCES articles(id) ON DELETE CASCADE,
    FOREIGN KEY (browse_id) REFERENCES browses(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_browsed_browse ON browsed(browse_id);
`
